// Package localization renders user-facing text in the request's language.
package localization

import (
	"context"
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/requestcontext"
)

// Supported lists the display languages; the first is the fallback.
var Supported = []language.Tag{language.English, language.French, language.Arabic}

// Catalog holds the translated message set.
type Catalog struct {
	cat      *catalog.Builder
	fallback language.Tag
}

// New builds the catalog. The fallback language is used when the request
// carries none of the supported languages.
func New(fallback language.Tag) (*Catalog, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range translations {
		for key, msg := range entries {
			if err := b.SetString(tag, key, msg); err != nil {
				return nil, err
			}
		}
	}
	matcher := language.NewMatcher(Supported)
	_, idx, _ := matcher.Match(fallback)
	return &Catalog{cat: b, fallback: Supported[idx]}, nil
}

// Message formats key in the context language. Unknown keys are returned
// formatted as-is.
func (c *Catalog) Message(ctx context.Context, key string, args ...any) string {
	return c.printer(ctx).Sprintf(key, args...)
}

// MessageIn formats key in an explicit language, for text rendered outside a
// request such as notifications.
func (c *Catalog) MessageIn(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag, message.Catalog(c.cat)).Sprintf(key, args...)
}

// LocalizeError swaps the message of a coded error for its translation.
// English keeps the specific service message; other languages get the
// translated text for the code. Internal errors pass through untouched since
// their message is never shown.
func (c *Catalog) LocalizeError(ctx context.Context, err error) error {
	var de *dErrors.Error
	if !errors.As(err, &de) || de.Code == dErrors.CodeInternal {
		return err
	}
	tag := c.language(ctx)
	if tag == language.English {
		return err
	}
	key := errorKey(de.Code)
	if _, ok := translations[tag][key]; !ok {
		return err
	}
	return &dErrors.Error{Code: de.Code, Message: c.MessageIn(tag, key), Err: de.Err}
}

func (c *Catalog) printer(ctx context.Context) *message.Printer {
	return message.NewPrinter(c.language(ctx), message.Catalog(c.cat))
}

func (c *Catalog) language(ctx context.Context) language.Tag {
	tag := requestcontext.Language(ctx)
	for _, s := range Supported {
		if s == tag {
			return tag
		}
	}
	return c.fallback
}

func errorKey(code dErrors.Code) string {
	return "error." + string(code)
}
