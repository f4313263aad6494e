package anchors

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bsv-blockchain/go-sdk/script"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/types"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

func FuzzParseQuery(f *testing.F) {
	f.Add(`{"versionId":"` + strings.Repeat("AB", 32) + `"}`)
	f.Add(`{"parent":"` + strings.Repeat("0f", 32) + `","limit":5,"skip":1,"sortOrder":"asc"}`)
	f.Add(`{"findAll":true}`)
	f.Add(`{"limit":-3}`)
	f.Add(`[]`)
	f.Add(`{"txid":null}`)

	f.Fuzz(func(t *testing.T, raw string) {
		query, err := parseQuery(json.RawMessage(raw))
		if err != nil {
			return
		}
		for _, v := range []*string{query.VersionID, query.Txid, query.Parent} {
			if v == nil {
				continue
			}
			if !utils.IsHash64Hex(*v) || strings.ToLower(*v) != *v {
				t.Fatalf("accepted non-normalized hash filter %q", *v)
			}
		}
		if query.Limit != nil && *query.Limit < 0 {
			t.Fatalf("accepted negative limit %d", *query.Limit)
		}
		if query.Skip != nil && *query.Skip < 0 {
			t.Fatalf("accepted negative skip %d", *query.Skip)
		}
		if query.SortOrder != nil && *query.SortOrder != types.SortOrderAsc && *query.SortOrder != types.SortOrderDesc {
			t.Fatalf("accepted sort order %q", *query.SortOrder)
		}
	})
}

func FuzzDecodeAnchorScript(f *testing.F) {
	f.Add([]byte{0x00, 0x6a})
	f.Add([]byte{0x6a, 0x04, 'D', 'L', 'M', '1'})
	f.Add(append([]byte{0x00, 0x6a, 0x0b}, append([]byte("DLM1"), 0xa1, 0x62, 'm', 'h', 0x40, 0x00, 0x00)...))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := script.Script(data)
		anchor, err := DecodeAnchorScript(&s)
		if err != nil {
			return
		}
		for _, p := range anchor.ParentStrings() {
			if !utils.IsHash64Hex(p) {
				t.Fatalf("decoded parent %q is not a 64-hex hash", p)
			}
		}
	})
}
