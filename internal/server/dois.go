package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"datacite-api/internal/domain"
)

type recordOutput struct {
	Body domain.DOIRecord
}

// doiFromPath joins the prefix and suffix segments. A suffix containing '/'
// arrives percent-encoded.
func doiFromPath(prefix, suffix string) (string, error) {
	decoded, err := url.PathUnescape(suffix)
	if err != nil {
		return "", &domain.ValidationError{Field: "doi", Value: prefix + "/" + suffix, Reason: "suffix is not a valid path segment"}
	}
	doi := prefix + "/" + decoded
	if err := domain.ValidateDOI(doi); err != nil {
		return "", err
	}
	return doi, nil
}

func registerDOIs(api huma.API, reg Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "list-dois",
		Method:      http.MethodGet,
		Path:        "/dois",
		Summary:     "List DOI records under the configured prefix",
		Tags:        []string{"DOI"},
	}, func(ctx context.Context, input *struct {
		PageSize int `query:"page_size" default:"20" minimum:"1" maximum:"1000"`
		PageNum  int `query:"page_num" default:"1" minimum:"1"`
	}) (*struct {
		Body domain.DOIRecordList
	}, error) {
		list, err := reg.ListDOIs(ctx, input.PageSize, input.PageNum)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DOIRecordList
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-doi",
		Method:      http.MethodPost,
		Path:        "/dois",
		Summary:     "Create or update a DOI record",
		Description: "Replaces the metadata of the record, creating a draft if it does not exist. An event key in the metadata is ignored; use the state operation to register, publish or hide.",
		Tags:        []string{"DOI"},
	}, func(ctx context.Context, input *struct {
		Body domain.DOIRecord
	}) (*recordOutput, error) {
		rec, err := reg.UpdateDOI(ctx, input.Body.DOI, input.Body.Metadata)
		if err != nil {
			return nil, handleError(err)
		}
		return &recordOutput{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-doi",
		Method:      http.MethodGet,
		Path:        "/dois/{prefix}/{suffix}",
		Summary:     "Get a DOI record",
		Tags:        []string{"DOI"},
	}, func(ctx context.Context, input *struct {
		Prefix string `path:"prefix" example:"10.15493"`
		Suffix string `path:"suffix" example:"SARVA.DWS.10000001" doc:"DOI suffix, with any '/' sent as %2F"`
	}) (*recordOutput, error) {
		doi, err := doiFromPath(input.Prefix, input.Suffix)
		if err != nil {
			return nil, handleError(err)
		}
		rec, err := reg.GetDOI(ctx, doi)
		if err != nil {
			return nil, handleError(err)
		}
		return &recordOutput{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-doi",
		Method:        http.MethodDelete,
		Path:          "/dois/{prefix}/{suffix}",
		Summary:       "Delete a draft DOI record",
		Tags:          []string{"DOI"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		Prefix string `path:"prefix"`
		Suffix string `path:"suffix"`
	}) (*struct{}, error) {
		doi, err := doiFromPath(input.Prefix, input.Suffix)
		if err != nil {
			return nil, handleError(err)
		}
		if err := reg.DeleteDOI(ctx, doi); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-doi-state",
		Method:      http.MethodPut,
		Path:        "/dois/{prefix}/{suffix}",
		Summary:     "Register, publish or hide a DOI",
		Tags:        []string{"DOI"},
	}, func(ctx context.Context, input *struct {
		Prefix string `path:"prefix"`
		Suffix string `path:"suffix"`
		Event  string `query:"event" required:"true" enum:"register,publish,hide"`
	}) (*recordOutput, error) {
		doi, err := doiFromPath(input.Prefix, input.Suffix)
		if err != nil {
			return nil, handleError(err)
		}
		event, err := domain.ParseEvent(input.Event)
		if err != nil {
			return nil, handleError(err)
		}
		rec, err := reg.ChangeDOIState(ctx, doi, event)
		if err != nil {
			return nil, handleError(err)
		}
		return &recordOutput{Body: rec}, nil
	})
}
