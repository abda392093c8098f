package slug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMake_BasicTitle_Lowercased(t *testing.T) {
	require.Equal(t, "getting-started", Make("Getting Started"))
}

func TestMake_AccentsFolded(t *testing.T) {
	require.Equal(t, "cafe-au-lait", Make("Café au Lait"))
}

func TestMake_PunctuationCollapsed(t *testing.T) {
	require.Equal(t, "faq-how-do-i", Make("FAQ: How do I...?"))
}

func TestMake_LeadingTrailingJunkTrimmed(t *testing.T) {
	require.Equal(t, "hello", Make("  --hello!  "))
}

func TestMake_Digits_Kept(t *testing.T) {
	require.Equal(t, "v2-release-notes", Make("v2 Release Notes"))
}

func TestMake_Empty_Empty(t *testing.T) {
	require.Equal(t, "", Make(""))
	require.Equal(t, "", Make("!!!"))
}

func TestDeslug_TitleCasesWords(t *testing.T) {
	require.Equal(t, "Getting Started", Deslug("getting-started"))
	require.Equal(t, "V2 Release Notes", Deslug("v2-release-notes"))
}
