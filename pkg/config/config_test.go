package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateCatchesEmptyDataDir(t *testing.T) {
	c := Default()
	c.DataDir = ""
	assert.Error(t, c.Validate())
}

func TestValidateCatchesBadQueueCapacity(t *testing.T) {
	c := Default()
	c.QueueCapacity = 0
	assert.Error(t, c.Validate())
}

func TestValidateCatchesBadReconcileBounds(t *testing.T) {
	c := Default()
	c.ReconcileCeiling = c.ReconcileFloor - 1
	assert.Error(t, c.Validate())
}
