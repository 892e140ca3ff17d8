package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	t.Run("production writes json", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithOutput(&buf, "production", "debug")
		log.WithField("user_id", 7).Info("signed up")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "signed up", entry["msg"])
		assert.EqualValues(t, 7, entry["user_id"])
		assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		log := NewWithOutput(&bytes.Buffer{}, "development", "loud")
		assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	})
}
