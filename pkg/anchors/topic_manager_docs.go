package anchors

// TopicManagerDocumentation describes how the DLM1 topic manager decides
// which outputs to admit.
const TopicManagerDocumentation = `# DLM1 Topic Manager

**Topic**: ` + "`tm_dlm1`" + `
**Manager Name**: ` + "`TopicManager`" + `

---

## Overview

The DLM1 Topic Manager admits transaction outputs that anchor a dataset manifest on chain. An anchor is a
small CBOR record holding the manifest hash (` + "`mh`" + `) and, optionally, the hashes of parent versions (` + "`p`" + `).

---

## Requirements for a Valid DLM1 Output

1. **Script shape**: ` + "`OP_FALSE OP_RETURN <pushes>`" + ` (a bare ` + "`OP_RETURN`" + ` is also accepted).
2. **Tag**: the pushes start with the 4 ASCII bytes ` + "`DLM1`" + `, either as a prefix of the first push
   (` + "`DLM1 || cbor`" + `) or as a push of their own followed by the CBOR push.
3. **Anchor**: the CBOR payload is a map with ` + "`mh`" + ` (exactly 32 bytes) and an optional ` + "`p`" + `
   (array of 32-byte entries). Trailing bytes, duplicate keys and indefinite lengths are rejected.

Outputs that fail any check are not admitted. Malformed DLM1 payloads are logged.

---

## Gotchas and Tips

- **Value**: anchor outputs carry 0 satoshis; they are data, not coins.
- **Encoding**: new anchors should use the single push ` + "`DLM1 || cbor`" + `.
- **Identity**: the manifest hash is the sha256 of the canonical manifest JSON, with ` + "`versionId`" + ` and
  ` + "`signatures`" + ` removed at the top level.
`
