package domain_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"datacite-api/internal/domain"
)

func TestValidateDOI(t *testing.T) {
	valid := []string{
		"10.1234/abc",
		"10.15493/SARVA.DWS.10000001",
		"10.1000.10/x-y_z;(1)/2:3",
		"10.12345.6.7/a",
	}
	for _, doi := range valid {
		assert.NoError(t, domain.ValidateDOI(doi), doi)
	}

	invalid := []string{
		"",
		"10.123/abc",
		"11.1234/abc",
		"10.1234",
		"10.1234/",
		"10.1234/abc def",
		"10.1234/abc?x=1",
		"doi:10.1234/abc",
		"10.1234/abc#frag",
	}
	for _, doi := range invalid {
		err := domain.ValidateDOI(doi)
		var verr *domain.ValidationError
		require.Error(t, err, doi)
		require.True(t, errors.As(err, &verr), doi)
		assert.Equal(t, "doi", verr.Field)
	}
}

func TestParseEvent(t *testing.T) {
	for _, e := range domain.Events() {
		parsed, err := domain.ParseEvent(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
	for _, s := range []string{"", "Publish", "draft", "findable", "delete"} {
		_, err := domain.ParseEvent(s)
		assert.Error(t, err, s)
	}
}

func TestValidatePaging(t *testing.T) {
	size, num, err := domain.ValidatePaging(0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPageSize, size)
	assert.Equal(t, domain.DefaultPageNum, num)

	size, num, err = domain.ValidatePaging(1000, 7)
	require.NoError(t, err)
	assert.Equal(t, 1000, size)
	assert.Equal(t, 7, num)

	_, _, err = domain.ValidatePaging(1001, 1)
	assert.Error(t, err)
	_, _, err = domain.ValidatePaging(-1, 1)
	assert.Error(t, err)
	_, _, err = domain.ValidatePaging(20, -3)
	assert.Error(t, err)
}

func TestMetadataWithoutPreservesOrder(t *testing.T) {
	md, err := domain.ParseMetadata([]byte(`{"titles":[{"title":"x"}],"event":"publish","url":"https://example.org"}`))
	require.NoError(t, err)

	stripped := md.Without(domain.ReservedEventKey)
	assert.False(t, stripped.Has(domain.ReservedEventKey))
	assert.True(t, md.Has(domain.ReservedEventKey), "original must not be modified")
	assert.JSONEq(t, `{"titles":[{"title":"x"}],"url":"https://example.org"}`, string(stripped))
	assert.Less(t, strings.Index(string(stripped), "titles"), strings.Index(string(stripped), "url"))

	last, err := domain.ParseMetadata([]byte(`{"a":1,"event":"hide"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(last.Without(domain.ReservedEventKey)))

	nested, err := domain.ParseMetadata([]byte(`{"related":{"event":"keep"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"related":{"event":"keep"}}`, string(nested.Without(domain.ReservedEventKey)))
}

func TestMetadataWithoutDropsDuplicateKeys(t *testing.T) {
	md, err := domain.ParseMetadata([]byte(`{"event":"publish","url":"u","event":"hide"}`))
	require.NoError(t, err)

	stripped := md.Without(domain.ReservedEventKey)
	assert.JSONEq(t, `{"url":"u"}`, string(stripped))
	assert.False(t, stripped.Has(domain.ReservedEventKey))
	assert.Equal(t, `{"event":"publish","url":"u","event":"hide"}`, string(md))

	dup, err := domain.ParseMetadata([]byte(`{"doi":"a","url":"u","doi":"b"}`))
	require.NoError(t, err)
	out, err := dup.With("doi", "10.1234/abc")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), `"doi"`))
	assert.JSONEq(t, `{"url":"u","doi":"10.1234/abc"}`, string(out))
}

func TestMetadataWith(t *testing.T) {
	md, err := domain.ParseMetadata([]byte(`{"url":"https://example.org"}`))
	require.NoError(t, err)
	out, err := md.With("doi", "10.1234/abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.org","doi":"10.1234/abc"}`, string(out))
	assert.JSONEq(t, `{"url":"https://example.org"}`, string(md))

	empty, err := domain.Metadata(nil).With("event", "publish")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"publish"}`, string(empty))
}

func TestMetadataJSON(t *testing.T) {
	var rec domain.DOIRecord
	require.NoError(t, json.Unmarshal([]byte(`{"doi":"10.1234/abc","metadata":{"b":1,"a":2}}`), &rec))
	assert.Equal(t, `{"b":1,"a":2}`, string(rec.Metadata))

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"doi":"10.1234/abc","metadata":{"b":1,"a":2}}`, string(b))

	for _, body := range []string{`{"doi":"10.1234/abc","metadata":[1]}`, `{"doi":"10.1234/abc","metadata":"x"}`, `{"doi":"10.1234/abc","metadata":null}`} {
		assert.Error(t, json.Unmarshal([]byte(body), &rec), body)
	}

	b, err = json.Marshal(domain.DOIRecord{DOI: "10.1234/abc"})
	require.NoError(t, err)
	assert.Equal(t, `{"doi":"10.1234/abc","metadata":{}}`, string(b))
}

func TestMetadataYAML(t *testing.T) {
	md, err := domain.ParseMetadata([]byte(`{"z":"true","a":[1,2]}`))
	require.NoError(t, err)
	out, err := yaml.Marshal(map[string]any{"metadata": md})
	require.NoError(t, err)
	assert.Equal(t, "metadata:\n    z: \"true\"\n    a:\n        - 1\n        - 2\n", string(out))
}

func TestNewDOIRecord(t *testing.T) {
	rec, err := domain.NewDOIRecord("10.1234/abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(rec.Metadata))

	_, err = domain.NewDOIRecord("not-a-doi", nil)
	assert.Error(t, err)
}
