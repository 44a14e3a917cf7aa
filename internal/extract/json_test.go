package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const searchJSON = `{
	"total": 2,
	"results": [
		{"ref": "12/0001", "site": {"address": "1 High St"}, "dates": ["2012-09-13", "2012-09-20"],
		 "n": 5, "desc": "Shed (Amended)", "wards": ["Abbey", "Castle"], "extra": {"a": 1}},
		{"ref": "12/0002", "n": 1.5}
	]
}`

func TestJSONListWithSelectors(t *testing.T) {
	var list JSONList
	require.NoError(t, yaml.Unmarshal([]byte(`
path: [results]
fields:
  uid: ref
  address: [site, address]
  date_received: [dates, 0]
  last_date: [dates, -1]
  count: n
  wards: wards
  extra: extra
  desc: {path: desc, pattern: "{{ description }} (Amended)"}
  ref: "{{ year }}/{{ number }}"
`), &list))

	doc, err := DecodeJSON([]byte(searchJSON))
	require.NoError(t, err)

	got := list.Apply(doc)
	want := []Fields{
		{
			"uid":           "12/0001",
			"address":       "1 High St",
			"date_received": "2012-09-13",
			"last_date":     "2012-09-20",
			"count":         "5",
			"wards":         "Abbey, Castle",
			"description":   "Shed",
			"year":          "12",
			"number":        "0001",
		},
		{"uid": "12/0002", "count": "1.5", "year": "12", "number": "0002"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONTemplateTopLevel(t *testing.T) {
	var tpl JSONTemplate
	require.NoError(t, yaml.Unmarshal([]byte(`{total: total, first: [results, 0, ref], missing: [results, 9, ref]}`), &tpl))
	doc, err := DecodeJSON([]byte(searchJSON))
	require.NoError(t, err)
	require.Equal(t, Fields{"total": "2", "first": "12/0001"}, tpl.Apply(doc))
}

func TestDecodeJSONLenient(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{results: [{'ref': 'A/1',},],}`))
	require.NoError(t, err)
	v, ok := Lookup(doc, []any{"results", 0, "ref"})
	require.True(t, ok)
	require.Equal(t, "A/1", v)

	_, err = DecodeJSON([]byte(`<html>not json</html>`))
	require.Error(t, err)
}
