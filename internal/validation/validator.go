package validation

import (
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// New 返回注册了自定义规则的 validator。
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// sku: 字母数字开头，允许 _ -，最长 64；大小写不敏感，落库前统一大写
	_ = v.RegisterValidation("sku", func(fl validatorv10.FieldLevel) bool {
		return skuPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	v.RegisterStructValidation(seasonStructValidation, SeasonRequest{})
	return v
}

// seasonStructValidation 结束时间必须晚于开始时间。
func seasonStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(SeasonRequest)
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() {
		if req.EndsAt.IsZero() {
			sl.ReportError(req.EndsAt, "ends_at", "EndsAt", "required", "")
		}
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		sl.ReportError(req.EndsAt, "ends_at", "EndsAt", "after_starts_at", "")
	}
}
