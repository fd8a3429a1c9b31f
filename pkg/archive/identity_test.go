package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_AssertNotViewonly_RejectsConfiguredReadOnlyUser(t *testing.T) {
	t.Parallel()

	s := &Store{cfg: Config{ReadOnlyUser: "viewonly"}}

	err := s.assertNotViewonly("store.save", "viewonly")
	assert.ErrorIs(t, err, errViewonly)
}

func Test_AssertNotViewonly_AllowsAnyOtherUser(t *testing.T) {
	t.Parallel()

	s := &Store{cfg: Config{ReadOnlyUser: "viewonly"}}

	assert.NoError(t, s.assertNotViewonly("store.save", "alice"))
}
