package failure

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("extract tile 11: %w", Geometryf("ring %d self-intersects", 0))

	assert.True(t, errors.Is(err, ErrGeometry))
	assert.False(t, errors.Is(err, ErrIO))
	assert.Equal(t, "geometry", KindOf(err))
	assert.Contains(t, err.Error(), "ring 0 self-intersects")
}

func TestIO(t *testing.T) {
	assert.NoError(t, IO("open", "x.tif", nil))

	err := IO("open", "x.tif", os.ErrNotExist)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, "open: io error (x.tif): file does not exist", err.Error())

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "x.tif", fe.Path)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "", KindOf(nil))
	assert.Equal(t, "configuration", KindOf(Configurationf("two layers")))
	assert.Equal(t, "primitive", KindOf(Primitivef("all nodata")))
	assert.Equal(t, "unknown", KindOf(errors.New("boom")))
}
