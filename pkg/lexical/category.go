package lexical

import "strings"

const (
	CategoryCancer  = "cancer"
	CategoryNerve   = "nerve"
	CategoryGeneral = "general"
	CategoryAuto    = "auto"
)

// crossCategoryKeywords mark titles that belong to the other specialty.
var crossCategoryKeywords = map[string][]string{
	CategoryCancer: {"자율신경", "자율신경실조", "교감신경", "부교감신경", "자율신경장애"},
	CategoryNerve:  {"고주파", "온열치료", "온코써미아", "하이퍼써미아", "항암", "화학요법", "항암치료", "항암제"},
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryCancer, []string{
		"암", "항암", "온열", "고주파", "면역", "종양", "전이", "요양",
		"보조치료", "암세포", "방사선", "화학요법", "nk세포", "미슬토",
		"셀레늄", "고용량비타민", "비타민c", "온코써미아", "하이퍼써미아",
	}},
	{CategoryNerve, []string{
		"자율신경", "신경", "두통", "어지럼", "불면", "스트레스",
		"이명", "손발저림", "실조증", "교감신경", "부교감신경",
	}},
}

// DetectCategory classifies a document by keyword lists, trying the title before the body.
func DetectCategory(title, text string) string {
	for _, candidate := range []string{title, text} {
		normalized := strings.ToLower(strings.ReplaceAll(candidate, " ", ""))
		if normalized == "" {
			continue
		}
		for _, group := range categoryKeywords {
			for _, kw := range group.keywords {
				if strings.Contains(normalized, kw) {
					return group.category
				}
			}
		}
	}
	return CategoryGeneral
}

// ResolveCategory returns requested when it names a category and classifies the question
// otherwise ("" or "auto").
func ResolveCategory(requested, question string) string {
	switch requested {
	case CategoryCancer, CategoryNerve, CategoryGeneral:
		return requested
	default:
		return DetectCategory("", question)
	}
}

// BelongsElsewhere reports whether a source tagged sourceCategory with the given title is
// specific to a specialty other than category. General sources belong everywhere.
func BelongsElsewhere(category, sourceCategory, title string) bool {
	if category == CategoryGeneral || category == "" {
		return false
	}
	if sourceCategory != "" && sourceCategory != CategoryGeneral && sourceCategory != category {
		return true
	}
	normalized := strings.ToLower(strings.ReplaceAll(title, " ", ""))
	for _, kw := range crossCategoryKeywords[category] {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}
