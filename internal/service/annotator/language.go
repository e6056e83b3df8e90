package annotator

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// DefaultLanguage 无法识别时使用的语言
const DefaultLanguage = "en"

// LanguageDetector 识别消息语言，返回 ISO 639-1 代码
type LanguageDetector interface {
	Detect(text string) string
}

// LinguaDetector 基于 lingua 的语言识别，检测器延迟构建
type LinguaDetector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

// NewLanguageDetector 创建语言识别器
func NewLanguageDetector() *LinguaDetector {
	return &LinguaDetector{}
}

var supportedLanguages = map[lingua.Language]string{
	lingua.English:    "en",
	lingua.Malay:      "ms",
	lingua.Indonesian: "id",
	lingua.Chinese:    "zh",
	lingua.Tamil:      "ta",
	lingua.Hindi:      "hi",
	lingua.Thai:       "th",
	lingua.Vietnamese: "vi",
	lingua.Japanese:   "ja",
	lingua.Korean:     "ko",
	lingua.Spanish:    "es",
	lingua.French:     "fr",
	lingua.German:     "de",
	lingua.Arabic:     "ar",
}

func (d *LinguaDetector) get() lingua.LanguageDetector {
	d.once.Do(func() {
		languages := make([]lingua.Language, 0, len(supportedLanguages))
		for l := range supportedLanguages {
			languages = append(languages, l)
		}
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.25).
			Build()
	})
	return d.detector
}

// Detect 识别文本语言，文本过短或无法判断时返回 en
func (d *LinguaDetector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < 3 {
		return DefaultLanguage
	}
	language, ok := d.get().DetectLanguageOf(text)
	if !ok {
		return DefaultLanguage
	}
	if code, ok := supportedLanguages[language]; ok {
		return code
	}
	return DefaultLanguage
}
