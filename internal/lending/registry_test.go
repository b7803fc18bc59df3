package lending_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulation/internal/lending"
)

func Test_Registry_SnapshotIsStableAcrossAppends(t *testing.T) {
	r := lending.NewRegistry(givenOpenLoan(t))

	before := r.Snapshot()
	r.Add(givenOpenLoan(t))

	assert.Len(t, before, 1)
	assert.Len(t, r.Snapshot(), 2)

	user := uuid.New()
	r.Add(lending.NewLoan(user, uuid.New(), lending.MustFineStrategy(7, 1), day0))
	mine := r.Filter(func(l *lending.Loan) bool { return l.UserID() == user })
	assert.Len(t, mine, 1)
}

func Test_Registry_Reset_ReplacesContentsButNotOldSnapshots(t *testing.T) {
	r := lending.NewRegistry(givenOpenLoan(t), givenOpenLoan(t))
	before := r.Snapshot()

	restored := givenOpenLoan(t)
	r.Reset(restored)

	assert.Len(t, before, 2)
	require.Len(t, r.Snapshot(), 1)
	assert.Equal(t, restored.ID(), r.Snapshot()[0].ID())
}
