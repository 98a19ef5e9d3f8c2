package types

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxyproject/depotsync/util/common/errors"
)

func TestWorkItemTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:  {StatusInFlight, StatusAbandoned},
		StatusInFlight: {StatusSucceeded, StatusFailed, StatusAbandoned},
		StatusFailed:   {StatusPending, StatusAbandoned},
	}
	all := []Status{StatusPending, StatusInFlight, StatusSucceeded, StatusFailed, StatusAbandoned, StatusSkipped}

	for _, from := range all {
		for _, to := range all {
			ok := false
			for _, a := range allowed[from] {
				if a == to {
					ok = true
				}
			}
			t.Run(fmt.Sprintf("%s to %s", from, to), func(t *testing.T) {
				item := &WorkItem{Ref: MustArtifactRef("x:1", ""), Status: from}
				err := item.Transition(to)
				if ok {
					assert.NoError(t, err)
					assert.Equal(t, to, item.Status)
				} else {
					assert.Error(t, err)
					assert.Equal(t, from, item.Status)
				}
			})
		}
	}
}

func TestWorkItemAttempts(t *testing.T) {
	item := NewWorkItem(MustArtifactRef("x:1", ""))
	assert.Equal(t, 0, item.Attempts())

	require.NoError(t, item.Transition(StatusInFlight))
	require.NoError(t, item.Transition(StatusFailed))
	require.NoError(t, item.Transition(StatusPending))
	assert.Equal(t, 1, item.Attempt)
	require.NoError(t, item.Transition(StatusInFlight))
	require.NoError(t, item.Transition(StatusSucceeded))
	assert.Equal(t, 2, item.Attempts())
	assert.True(t, item.Status.IsTerminal())

	pending := NewWorkItem(MustArtifactRef("y:1", ""))
	require.NoError(t, pending.Transition(StatusAbandoned))
	assert.Equal(t, 0, pending.Attempts())
}

func TestOutcome(t *testing.T) {
	o := Failed(errors.Permanent("convert", "x:1", fmt.Errorf("manifest unknown")), time.Second)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, errors.KindPermanent, o.Kind)

	s := Succeeded(time.Second)
	assert.Equal(t, StatusSucceeded, s.Status)
	assert.NoError(t, s.Err)
}
