package service

import (
	"errors"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var errNotAbsoluteURL = errors.New("must be an absolute URL")

// validateURL проверяет только синтаксис: схема плюс хост или opaque-часть.
// Список схем не ограничивается, javascript: и data: проходят.
func validateURL(rawURL string) error {
	err := validation.Validate(rawURL,
		validation.Required,
		validation.By(absoluteURL),
	)
	if err != nil {
		return ErrInvalidURL
	}
	return nil
}

func absoluteURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if !u.IsAbs() || (u.Host == "" && u.Opaque == "") {
		return errNotAbsoluteURL
	}
	return nil
}

// validateCode проверяет формат кода (6-8 латинских букв и цифр)
func validateCode(code string) error {
	err := validation.Validate(code,
		validation.Required,
		validation.Match(codePattern),
	)
	if err != nil {
		return ErrInvalidCode
	}
	return nil
}
