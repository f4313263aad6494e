package anchors

// LookupDocumentation is the documentation served by the DLM1 lookup service.
const LookupDocumentation = `# DLM1 Lookup Service

**Service**: ` + "`ls_dlm1`" + `

Finds DLM1 anchors admitted under ` + "`tm_dlm1`" + `. Each result carries the outpoint, the anchored manifest
hash and the parent hashes recorded on chain.

## Queries

### Legacy

` + "```json" + `
"findAll"
` + "```" + `

Returns every anchor, newest first.

### Object

` + "```json" + `
{
  "versionId": "<64 hex>",
  "txid": "<64 hex>",
  "parent": "<64 hex>",
  "findAll": false,
  "limit": 50,
  "skip": 0,
  "sortOrder": "desc"
}
` + "```" + `

- ` + "`versionId`" + `: anchors whose manifest hash equals this version id.
- ` + "`txid`" + `: anchors carried by this transaction.
- ` + "`parent`" + `: anchors that list this hash among their parents (children of a version).
- ` + "`findAll`" + `: ignore filters and page through every anchor.
- ` + "`limit`" + ` / ` + "`skip`" + `: pagination; ` + "`limit`" + ` must be positive and ` + "`skip`" + ` non-negative.
- ` + "`sortOrder`" + `: ` + "`asc`" + ` or ` + "`desc`" + ` by admission time (default ` + "`desc`" + `).

Filters combine with AND. Hex filters are case-insensitive.

## Answer

A freeform answer whose result is a list of:

` + "```json" + `
{ "txid": "<hex>", "outputIndex": 0, "manifestHash": "<hex>", "parents": ["<hex>"] }
` + "```" + `
`
