package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskIP(t *testing.T) {
	assert.Equal(t, "203.0.113.0", MaskIP("203.0.113.57"))
	assert.Equal(t, "2001:db8:abcd::", MaskIP("2001:db8:abcd:12::1"))
	assert.Equal(t, "10.1.2.0", MaskIP("::ffff:10.1.2.3"))
	assert.Equal(t, "", MaskIP("not-an-ip"))
	assert.Equal(t, "", MaskIP(""))
}

func TestSummarizeUserAgent(t *testing.T) {
	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	summary := SummarizeUserAgent(chrome)
	assert.Contains(t, summary, "Chrome 120")
	assert.Contains(t, summary, "Windows")
	assert.NotContains(t, summary, "AppleWebKit")

	assert.Equal(t, "bot", SummarizeUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)"))
	assert.Equal(t, "", SummarizeUserAgent("  "))
}

func TestActionCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, ActionVerificationCompleted.Category())
	assert.Equal(t, CategoryOperations, ActionCompanyCreated.Category())
	assert.Equal(t, CategoryOperations, Action("something.else").Category())
}
