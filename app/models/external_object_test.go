package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalObjectValidate(t *testing.T) {
	obj := &ExternalObject{ExternalID: "tx-1", ObjectType: "transaction"}
	require.NoError(t, obj.Validate())

	assert.Error(t, (&ExternalObject{ObjectType: "transaction"}).Validate())
	assert.Error(t, (&ExternalObject{ExternalID: "tx-1"}).Validate())
}

func TestExternalObjectMetadataMap(t *testing.T) {
	obj := &ExternalObject{Metadata: `{"institution_name":"RBC","attempt_count":2}`}

	meta, err := obj.MetadataMap()
	require.NoError(t, err)
	assert.Equal(t, "RBC", meta["institution_name"])
	assert.Equal(t, float64(2), meta["attempt_count"])

	empty, err := (&ExternalObject{}).MetadataMap()
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = (&ExternalObject{Metadata: "{broken"}).MetadataMap()
	assert.Error(t, err)
}
