package localization

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/requestcontext"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(language.English)
	require.NoError(t, err)
	return c
}

func TestEveryLanguageHasEveryKey(t *testing.T) {
	for key := range translations[language.English] {
		for _, tag := range Supported {
			_, ok := translations[tag][key]
			assert.True(t, ok, "%s missing %q", tag, key)
		}
	}
}

func TestMessage(t *testing.T) {
	c := newCatalog(t)
	ctx := requestcontext.WithLanguage(context.Background(), language.French)

	got := c.Message(ctx, KeyRegistrationApproved, "r-1", "Acme Bank")
	assert.Equal(t, "L'enregistrement r-1 pour Acme Bank a été approuvé.", got)

	got = c.Message(context.Background(), KeyRegistrationStatusChanged, "r-1", "Acme Bank", "Draft", "Submitted")
	assert.Equal(t, "Registration r-1 for Acme Bank moved from Draft to Submitted.", got)
}

func TestMessage_UnsupportedLanguageFallsBack(t *testing.T) {
	c := newCatalog(t)
	ctx := requestcontext.WithLanguage(context.Background(), language.German)
	assert.Equal(t, "Registration rejected", c.Message(ctx, SubjectKey(KeyRegistrationRejected)))
}

func TestLocalizeError(t *testing.T) {
	c := newCatalog(t)
	fr := requestcontext.WithLanguage(context.Background(), language.French)
	ar := requestcontext.WithLanguage(context.Background(), language.Arabic)

	t.Run("english keeps the service message", func(t *testing.T) {
		err := dErrors.New(dErrors.CodeIllegalTransition, "cannot move from Draft to Approved")
		assert.Same(t, err, c.LocalizeError(context.Background(), err))
	})

	t.Run("illegal transition and insufficient role differ", func(t *testing.T) {
		illegal := c.LocalizeError(fr, dErrors.New(dErrors.CodeIllegalTransition, "x"))
		role := c.LocalizeError(fr, dErrors.New(dErrors.CodeInsufficientRole, "x"))
		assert.NotEqual(t, illegal.Error(), role.Error())
		assert.True(t, dErrors.HasCode(illegal, dErrors.CodeIllegalTransition))
		assert.True(t, dErrors.HasCode(role, dErrors.CodeInsufficientRole))
	})

	t.Run("arabic", func(t *testing.T) {
		err := c.LocalizeError(ar, dErrors.New(dErrors.CodeNotFound, "registration not found"))
		assert.Equal(t, "المورد المطلوب غير موجود.", err.Error())
	})

	t.Run("internal and uncoded errors pass through", func(t *testing.T) {
		internal := dErrors.New(dErrors.CodeInternal, "boom")
		assert.Same(t, internal, c.LocalizeError(fr, internal))
		plain := errors.New("plain")
		assert.Same(t, plain, c.LocalizeError(fr, plain))
	})
}
