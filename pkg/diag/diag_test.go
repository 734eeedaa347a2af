package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := Errorf(CodeUnrepairableTopology, StageRepair, "hole of %d edges", 80)
	wrapped := fmt.Errorf("pipeline: %w", err)

	assert.True(t, errors.Is(wrapped, ErrUnrepairableTopology))
	assert.False(t, errors.Is(wrapped, ErrInvalidGrid))

	var de *Error
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, StageRepair, de.Stage)
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code only",
			err:  &Error{Code: CodeInvalidGrid},
			want: "INVALID_GRID",
		},
		{
			name: "with metric",
			err: &Error{
				Code:    CodeValidationFailure,
				Stage:   StageSimplification,
				Metric:  MetricBoundaryEdges,
				Count:   3,
				Message: "mesh is not closed",
			},
			want: "VALIDATION_FAILURE [simplification]: mesh is not closed (boundary_edges=3)",
		},
		{
			name: "with cause",
			err:  &Error{Code: CodeConfiguration, Message: "bad file", Err: errors.New("eof")},
			want: "CONFIGURATION_ERROR: bad file: eof",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Code: CodeConfiguration, Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestWarningString(t *testing.T) {
	w := Warning{Code: CodeVolumeDrift, Stage: StageRepair, Message: "volume changed by 3.1%"}
	assert.Equal(t, "VOLUME_DRIFT [repair]: volume changed by 3.1%", w.String())

	w.Stage = StageNone
	assert.Equal(t, "VOLUME_DRIFT: volume changed by 3.1%", w.String())
}
