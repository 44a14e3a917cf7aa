package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/internal/session"
)

const detailMarkup = `<html><head><title>Application</title></head><body>
<div id="header">Site chrome <table><tr><th>Reference</th><td>WRONG</td></tr></table></div>
<div id="pa">
<table id="simpleDetailsTable">
<tr><th> Reference </th><td> 12/00001/FUL </td></tr>
<tr><th>Address</th><td>1 High&nbsp;Street,
   Testtown TT1 1AA</td></tr>
<tr><th>Proposal</th><td>Erection of <b>a shed</b></td></tr>
</table>
<a href="applicationDetails.do?activeTab=dates&amp;keyVal=ABC">Important Dates</a>
</div>
</body></html>`

const detailURL = "https://pa.example.gov.uk/online-applications/applicationDetails.do?activeTab=summary"

func parse(t *testing.T, markup, base string) *Doc {
	t.Helper()
	d, err := ParseDoc([]byte(markup), base)
	require.NoError(t, err)
	return d
}

func TestTemplateTableRows(t *testing.T) {
	d := parse(t, detailMarkup, detailURL)
	tpl := MustCompile(`<table id="simpleDetailsTable">
		<tr><th>Reference</th><td>{{ reference }}</td></tr>
		<tr><th>Address</th><td>{{ address }}</td></tr>
		<tr><th>Proposal</th><td>{{ description }}</td></tr>
	</table>`)

	got, ok := tpl.Match(d)
	require.True(t, ok)
	want := Fields{
		"reference":   "12/00001/FUL",
		"address":     "1 High Street, Testtown TT1 1AA",
		"description": "Erection of a shed",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplateBlockScopesExtraction(t *testing.T) {
	d := parse(t, detailMarkup, detailURL)
	block := MustCompile(`<div id="pa">{{ block|html }}</div>`)

	scoped, ok := block.Block(d)
	require.True(t, ok)

	ref := MustCompile(`<tr><th>Reference</th><td>{{ reference }}</td></tr>`)
	whole, ok := ref.Match(d)
	require.True(t, ok)
	require.Equal(t, "WRONG", whole.String("reference"), "unscoped match should hit page chrome first")

	inner, ok := ref.Match(scoped)
	require.True(t, ok)
	require.Equal(t, "12/00001/FUL", inner.String("reference"))

	f, ok := block.Match(d)
	require.True(t, ok)
	require.Contains(t, f.String("block"), `<table id="simpleDetailsTable">`)

	missing := MustCompile(`<div id="nope">{{ block|html }}</div>`)
	_, ok = missing.Block(d)
	require.False(t, ok)

	plain := MustCompile(`<title>Application</title>`)
	same, ok := plain.Block(d)
	require.True(t, ok)
	require.Same(t, d, same)
}

func TestTemplateAbsoluteLink(t *testing.T) {
	d := parse(t, detailMarkup, detailURL)
	tpl := MustCompile(`<a href="{{ dates_link|abs }}">Important Dates</a>`)
	f, ok := tpl.Match(d)
	require.True(t, ok)
	require.Equal(t, "https://pa.example.gov.uk/online-applications/applicationDetails.do?activeTab=dates&keyVal=ABC", f.String("dates_link"))

	wrongText := MustCompile(`<a href="{{ info_link|abs }}">Further Information</a>`)
	_, ok = wrongText.Match(d)
	require.False(t, ok)
}

const resultsMarkup = `<html><body>
<ul id="searchresults">
<li class="searchresult odd"><a href="/online-applications/app?keyVal=A1">Shed</a>
  <p class="metaInfo">Ref. No: 12/00001/FUL <span class="divider">|</span> Validated: Thu 13 Sep 2012</p></li>
<li class="searchresult"><a href="/online-applications/app?keyVal=A2">Garage</a>
  <p class="metaInfo">Ref. No: 12/00002/HOU <span class="divider">|</span> Validated: Fri 14 Sep 2012</p></li>
</ul>
<p class="pager">Showing 1-2 of 2</p>
</body></html>`

func TestTemplateRepeatingBlock(t *testing.T) {
	d := parse(t, resultsMarkup, "https://pa.example.gov.uk/online-applications/search.do")
	tpl := MustCompile(`<ul id="searchresults">
	{* <li class="searchresult">
		<a href="{{ [records].url|abs }}">{{ [records].description }}</a>
		<p class="metaInfo">Ref. No: {{ [records].uid }} <span>|</span> Validated: {{ [records].date_validated }}</p>
	</li> *}
	</ul>`)

	f, ok := tpl.Match(d)
	require.True(t, ok)
	want := []Fields{
		{
			"url":            "https://pa.example.gov.uk/online-applications/app?keyVal=A1",
			"description":    "Shed",
			"uid":            "12/00001/FUL",
			"date_validated": "Thu 13 Sep 2012",
		},
		{
			"url":            "https://pa.example.gov.uk/online-applications/app?keyVal=A2",
			"description":    "Garage",
			"uid":            "12/00002/HOU",
			"date_validated": "Fri 14 Sep 2012",
		},
	}
	if diff := cmp.Diff(want, f.List("records")); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplatePlainNameInRepeatKeepsFirst(t *testing.T) {
	d := parse(t, resultsMarkup, "")
	tpl := MustCompile(`{* <li><a>{{ first }}</a></li> *}`)
	f, ok := tpl.Match(d)
	require.True(t, ok)
	require.Equal(t, "Shed", f.String("first"))
}

func TestTemplateDocumentText(t *testing.T) {
	d := parse(t, resultsMarkup, "")

	tests := []struct {
		name string
		src  string
		key  string
		want string
		ok   bool
	}{
		{"inner capture", "Showing {{ from }}-{{ to }} of {{ total }}", "total", "2", true},
		{"trailing capture", "of {{ total }}", "total", "2", true},
		{"leading capture", "{{ count }} of 2", "count", "1-2", true},
		{"literal", "showing 1-2", "", "", true},
		{"absent literal", "No results found", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := MustCompile(tt.src).Match(d)
			require.Equal(t, tt.ok, ok)
			if tt.key != "" {
				require.Equal(t, tt.want, f.String(tt.key))
			}
		})
	}
}

func TestTemplateAttributes(t *testing.T) {
	d := parse(t, `<form><input type="hidden" name="csrf" value=" tok123 "><input name="plain" disabled></form>`, "")

	tests := []struct {
		name string
		src  string
		ok   bool
	}{
		{"capture", `<input name="csrf" value="{{ token }}">`, true},
		{"presence", `<input name="plain" disabled="">`, true},
		{"literal mismatch", `<input name="csrf" type="text">`, false},
		{"missing attribute", `<input name="csrf" title="{{ token }}">`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := MustCompile(tt.src).Match(d)
			require.Equal(t, tt.ok, ok)
			if tt.name == "capture" {
				require.Equal(t, "tok123", f.String("token"))
			}
		})
	}
}

func TestTemplateCompileErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"{* <tr>{* <td></td> *}</tr> *}",
		"{* <tr></tr>",
		"<td>{{ name|upper }}</td>",
	} {
		_, err := Compile(src)
		require.Error(t, err, src)
	}
}

func TestTemplateNames(t *testing.T) {
	tpl := MustCompile(`<a href="{{ url|abs }}">{{ [ids].uid }}</a>`)
	require.Equal(t, []string{"url", "[ids].uid"}, tpl.Names())
}

func TestFromPageUsesBaseElement(t *testing.T) {
	page := session.NewPage("https://pa.example.gov.uk/search.do",
		[]byte(`<html><head><base href="https://other.example.gov.uk/apps/"></head><body><a href="x.do">Link</a></body></html>`))
	d, err := FromPage(page)
	require.NoError(t, err)
	f, ok := MustCompile(`<a href="{{ link|abs }}">Link</a>`).Match(d)
	require.True(t, ok)
	require.Equal(t, "https://other.example.gov.uk/apps/x.do", f.String("link"))
}

func TestFirstInt(t *testing.T) {
	n, ok := FirstInt("Showing 1,234 results")
	require.True(t, ok)
	require.Equal(t, 1234, n)
	_, ok = FirstInt("none")
	require.False(t, ok)
}
