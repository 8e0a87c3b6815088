package s3blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio.local:9000", normaliseEndpoint("minio.local:9000", true))
	assert.Equal(t, "http://minio.local:9000", normaliseEndpoint("minio.local:9000", false))
	assert.Equal(t, "http://x.y", normaliseEndpoint("http://x.y", true))
}

func TestKeyAndPath(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/perpdepth/")}
	assert.Equal(t, "perpdepth/capture/BTC/a.jsonl", c.key("/capture/BTC/a.jsonl"))
	assert.Equal(t, "capture/BTC/a.jsonl", c.path("perpdepth/capture/BTC/a.jsonl"))

	bare := &Client{prefix: normalisePrefix("")}
	assert.Equal(t, "capture/x", bare.key("capture/x"))
	assert.Equal(t, "capture/x", bare.path("capture/x"))
}
