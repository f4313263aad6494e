package dlm1

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/canonical"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

// ErrIDMismatch is returned when a manifest carries an explicit versionId
// that differs from the hash of its canonical form.
var ErrIDMismatch = errors.New("versionId does not match canonical manifest hash")

// Top-level members left out of the canonical form.
const (
	fieldVersionID  = "versionId"
	fieldSignatures = "signatures"
)

// IDs are the identifiers derived from a manifest. VersionID equals
// ManifestHash; an explicit versionId is accepted only when it matches.
type IDs struct {
	VersionID    string `json:"versionId"`
	ManifestHash string `json:"manifestHash"`
}

// Canonicalize returns the canonical bytes of the manifest: sorted keys at
// every level, compact output, and the top-level versionId and signatures
// members removed.
func Canonicalize(m *Manifest) ([]byte, error) {
	tree, err := m.Tree()
	if err != nil {
		return nil, err
	}
	return canonical.Marshal(tree.Without(fieldVersionID, fieldSignatures))
}

// DeriveManifestIDs hashes the canonical manifest and reconciles the result
// with any explicit versionId. An explicit value that is not a 64-hex digest,
// or that names a different digest, fails with ErrIDMismatch; it is never
// replaced by the computed hash.
func DeriveManifestIDs(m *Manifest) (IDs, error) {
	canon, err := Canonicalize(m)
	if err != nil {
		return IDs{}, err
	}
	sum := sha256.Sum256(canon)
	manifestHash := hex.EncodeToString(sum[:])

	explicit, err := explicitVersionID(m)
	if err != nil {
		return IDs{}, err
	}
	if explicit == "" {
		return IDs{VersionID: manifestHash, ManifestHash: manifestHash}, nil
	}
	if !utils.IsHash64Hex(explicit) {
		return IDs{}, fmt.Errorf("%w: versionId %q is not a 64-hex digest", ErrIDMismatch, explicit)
	}
	if strings.ToLower(explicit) != manifestHash {
		return IDs{}, fmt.Errorf("%w: provided %s, computed %s", ErrIDMismatch, strings.ToLower(explicit), manifestHash)
	}
	return IDs{VersionID: manifestHash, ManifestHash: manifestHash}, nil
}

func explicitVersionID(m *Manifest) (string, error) {
	tree, err := m.Tree()
	if err != nil {
		return "", err
	}
	v, ok := tree.Get(fieldVersionID)
	if !ok || v.IsNull() {
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%w: versionId must be a string, got %s", ErrIDMismatch, v.Kind())
	}
	return s, nil
}

// ExtractParents returns the manifest's parent hashes from lineage.parents,
// or from a top-level parents array when lineage has none. Entries that are
// not 64-hex strings are skipped; the rest are lowercased and deduplicated in
// first-seen order.
func ExtractParents(m *Manifest) ([]string, error) {
	tree, err := m.Tree()
	if err != nil {
		return nil, err
	}

	var list canonical.Value
	if lineage, ok := tree.Get("lineage"); ok {
		if parents, ok := lineage.Get("parents"); ok && parents.Kind() == canonical.KindArray {
			list = parents
		}
	}
	if list.Kind() != canonical.KindArray {
		if parents, ok := tree.Get("parents"); ok && parents.Kind() == canonical.KindArray {
			list = parents
		}
	}

	out := []string{}
	seen := make(map[string]struct{})
	for _, item := range list.Items() {
		s, ok := item.AsString()
		if !ok || !utils.IsHash64Hex(s) {
			continue
		}
		s = strings.ToLower(s)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// ManifestCID returns the CIDv1 (raw codec, sha2-256) of the canonical
// manifest bytes. Its multihash digest is the manifest hash, so the CID can
// address the manifest in content-addressed stores.
func ManifestCID(m *Manifest) (cid.Cid, error) {
	canon, err := Canonicalize(m)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(canon, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash manifest: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// AnchorFromManifest derives the on-chain anchor for a manifest together with
// its identifiers.
func AnchorFromManifest(m *Manifest) (Anchor, IDs, error) {
	ids, err := DeriveManifestIDs(m)
	if err != nil {
		return Anchor{}, IDs{}, err
	}
	mh, err := ParseHash(ids.ManifestHash)
	if err != nil {
		return Anchor{}, IDs{}, err
	}
	parentHex, err := ExtractParents(m)
	if err != nil {
		return Anchor{}, IDs{}, err
	}

	anchor := Anchor{ManifestHash: mh}
	for _, p := range parentHex {
		h, err := ParseHash(p)
		if err != nil {
			return Anchor{}, IDs{}, err
		}
		anchor.Parents = append(anchor.Parents, h)
	}
	return anchor, ids, nil
}
