package member

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/clubhub/core"
	appfs "github.com/trezcool/clubhub/fs"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	commonPasswords     []string
	commonPasswordsOnce sync.Once
)

// InitValidators registers the member validators. core.InitValidators must be called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// PasswordErrorText returns the message of a password policy tag.
func PasswordErrorText(tag string) string {
	switch tag {
	case pwdMinLenTag:
		return pwdMinLenText
	case pwdNoSpaceTag:
		return pwdNoSpaceText
	case pwdNotAllNumTag:
		return pwdNotAllNumText
	case pwdComplexityTag:
		return pwdComplexityText
	case pwdAttrSimTag:
		return pwdAttrSimText
	case pwdNoCommonTag:
		return pwdNoCommonText
	}
	return ""
}

func loadCommonPasswords() {
	commonPasswords = make([]string, 0, 64)
	if file, err := appfs.FS.Open("assets/common-passwords.txt"); err == nil {
		//goland:noinspection GoUnhandledErrorResult
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
				commonPasswords = append(commonPasswords, strings.ToLower(pwd))
			}
		}
	}
	sort.Strings(commonPasswords)
}

// Custom Validators

// roleValidation checks that a role (or each role of a slice) is known.
func roleValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Role:
		return v.Valid()
	case string:
		return Role(v).Valid()
	case []string:
		for _, r := range v {
			if !Role(r).Valid() {
				return false
			}
		}
		return true
	}
	return false
}

// accountStructValidation does struct level validation on NewAccount.
func accountStructValidation(sl validator.StructLevel) {
	if acc, ok := sl.Current().Interface().(NewAccount); ok {
		if acc.Role != "" && !acc.Role.Valid() {
			sl.ReportError(acc.Role, "role", "Role", roleTag, "")
		}
		validatePassword(acc.Password, acc.Name, acc.Email, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd, name, email string, sl validator.StructLevel) {
	if tag := CheckPassword(pwd, name, email); tag != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

// CheckPassword returns the tag of the first violated rule, or "".
func CheckPassword(pwd, name, email string) string {
	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	// - minLen: 8
	runes := []rune(pwd)
	pwdLen := len(runes)
	if pwdLen < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range runes {
		// - no whitespace
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	// - not all numeric
	if digitCount == pwdLen {
		return pwdNotAllNumTag
	}

	// - complexity: 1 upper, 1 lower, 1 digit & 1 special
	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		return pwdComplexityTag
	}

	// - no user attrs similarity
	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(strings.ToLower(usrAttr), "")).QuickRatio()
	}
	if getRatio(pwd, name) >= pwdMaxSim || getRatio(pwd, email) >= pwdMaxSim {
		return pwdAttrSimTag
	}

	// - no common passwords
	commonPasswordsOnce.Do(loadCommonPasswords)
	lpwd := strings.ToLower(pwd)
	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) {
		if commonPasswords[idx] == lpwd {
			return pwdNoCommonTag
		}
	}
	return ""
}
