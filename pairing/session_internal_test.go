package pairing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
)

func TestAwaitSecret_RefusesEmptySecret(t *testing.T) {
	s := &Session{log: zap.NewNop(), target: Target{Shape: ShapeToken}}

	from, err := s.awaitSecret(context.Background())
	require.Error(t, err)
	assert.Empty(t, from)
	assert.True(t, errs.IsKind(err, errs.KindInvalidInput), "got %v", err)
}
