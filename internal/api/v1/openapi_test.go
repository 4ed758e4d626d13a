package apiv1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicSpecIsValid(t *testing.T) {
	doc, err := LoadSpec("../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	ops := Operations(doc)
	for _, want := range []string{
		"POST /invoices",
		"GET /invoices/{id}/status",
		"POST /webhooks/{provider}",
		"POST /regtest/invoices/{id}/pay",
	} {
		assert.Contains(t, ops, want)
	}
}

func TestLoadSpecMissingFile(t *testing.T) {
	_, err := LoadSpec("does-not-exist.yml")
	assert.Error(t, err)
}
