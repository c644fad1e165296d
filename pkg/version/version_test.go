package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringDefaultsToRelease(t *testing.T) {
	assert.Equal(t, "v"+Release, String())
}

func TestFullNamesPlatform(t *testing.T) {
	full := Full()
	assert.Contains(t, full, "securechat "+String())
	assert.Contains(t, full, runtime.GOOS+"/"+runtime.GOARCH)
}
