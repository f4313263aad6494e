package dlm1

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/canonical"
)

var (
	errManifestNotObject = errors.New("manifest must be a JSON object")
	errSizeNotInteger    = errors.New("sizeBytes must be a whole number")
)

// Manifest describes one version of a dataset. The typed fields are a view
// for callers; identifiers are always derived from the JSON tree captured
// when the manifest was decoded, so members this struct does not model still
// contribute to the hash.
type Manifest struct {
	Type        string      `json:"type,omitempty"`
	DatasetID   string      `json:"datasetId"`
	VersionID   string      `json:"versionId,omitempty"`
	Description string      `json:"description,omitempty"`
	Content     Content     `json:"content"`
	Lineage     *Lineage    `json:"lineage,omitempty"`
	Provenance  Provenance  `json:"provenance"`
	Policy      Policy      `json:"policy"`
	Signatures  *Signatures `json:"signatures,omitempty"`
	// Parents is the flattened form some producers emit instead of lineage.parents.
	Parents []string `json:"parents,omitempty"`

	tree    canonical.Value
	hasTree bool
}

// Content identifies the dataset bytes.
type Content struct {
	ContentHash string  `json:"contentHash"`
	SizeBytes   *int64  `json:"sizeBytes,omitempty"`
	MimeType    string  `json:"mimeType,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

type contentFields Content

// UnmarshalJSON implements json.Unmarshaler. sizeBytes is accepted in any
// JSON number form that denotes a whole number, such as 1024.0 or 1e3.
func (c *Content) UnmarshalJSON(data []byte) error {
	var aux struct {
		contentFields
		SizeBytes *json.Number `json:"sizeBytes,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Content(aux.contentFields)
	if aux.SizeBytes == nil {
		return nil
	}
	n, err := wholeNumber(*aux.SizeBytes)
	if err != nil {
		return err
	}
	c.SizeBytes = &n
	return nil
}

func wholeNumber(num json.Number) (int64, error) {
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s", errSizeNotInteger, num)
	}
	return int64(f), nil
}

// Schema references the schema the content conforms to.
type Schema struct {
	URI        string `json:"uri,omitempty"`
	SchemaHash string `json:"schemaHash,omitempty"`
}

// Lineage links a version to the versions it was derived from.
type Lineage struct {
	Parents    []string    `json:"parents,omitempty"`
	Transforms []Transform `json:"transforms,omitempty"`
}

// Transform names one processing step in the lineage.
type Transform struct {
	Name           string `json:"name"`
	ParametersHash string `json:"parametersHash,omitempty"`
}

// Provenance records who produced the version, when, and where it lives.
type Provenance struct {
	Producer  *Producer  `json:"producer,omitempty"`
	CreatedAt string     `json:"createdAt"`
	Locations []Location `json:"locations,omitempty"`
}

// Producer identifies the producing party.
type Producer struct {
	IdentityKey string `json:"identityKey,omitempty"`
}

// Location is a retrieval location for the content.
type Location struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// Policy carries licensing and data classification.
type Policy struct {
	License        string   `json:"license"`
	Classification string   `json:"classification"`
	PIIFlags       []string `json:"pii_flags,omitempty"`
}

// Signatures holds producer and endorser signatures over the manifest. They
// are excluded from canonicalization.
type Signatures struct {
	Producer     *SignatureEntry  `json:"producer,omitempty"`
	Endorsements []SignatureEntry `json:"endorsements,omitempty"`
}

// SignatureEntry is one signature with the key that produced it.
type SignatureEntry struct {
	Role      string `json:"role,omitempty"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// manifestFields has Manifest's fields without its JSON methods.
type manifestFields Manifest

// ParseManifest decodes a manifest from JSON, keeping the full JSON tree for
// identifier derivation.
func ParseManifest(data []byte) (*Manifest, error) {
	m := new(Manifest)
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// ManifestFromValue builds a manifest from an already parsed tree.
func ManifestFromValue(tree canonical.Value) (*Manifest, error) {
	data, err := canonical.Marshal(tree)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	tree, err := canonical.Parse(data)
	if err != nil {
		return err
	}
	if tree.Kind() != canonical.KindMap {
		return fmt.Errorf("%w: got %s", errManifestNotObject, tree.Kind())
	}

	var fields manifestFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode manifest fields: %w", err)
	}
	*m = Manifest(fields)
	m.tree = tree
	m.hasTree = true
	return nil
}

// MarshalJSON implements json.Marshaler. A decoded manifest re-encodes as its
// canonical tree including the excluded members.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	if m.hasTree {
		return canonical.Marshal(m.tree)
	}
	return json.Marshal((*manifestFields)(m))
}

// Tree returns the JSON tree identifiers are derived from. For a manifest
// built as a struct literal the tree is produced from the typed fields.
func (m *Manifest) Tree() (canonical.Value, error) {
	if m.hasTree {
		return m.tree, nil
	}
	tree, err := canonical.FromAny((*manifestFields)(m))
	if err != nil {
		return canonical.Value{}, err
	}
	if tree.Kind() != canonical.KindMap {
		return canonical.Value{}, errManifestNotObject
	}
	return tree, nil
}
