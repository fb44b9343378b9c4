package memory

import (
	"encoding/json"
	"fmt"
)

// BucketNames lists the snapshot buckets written by durable backends, in write order.
var BucketNames = []string{
	"wards",
	"cages",
	"cats",
	"treatments",
	"donations",
	"ledger",
	"teams",
	"users",
	"intake_sequence",
}

func bucketTargets(s *Snapshot) map[string]any {
	return map[string]any{
		"wards":           &s.Wards,
		"cages":           &s.Cages,
		"cats":            &s.Cats,
		"treatments":      &s.Treatments,
		"donations":       &s.Donations,
		"ledger":          &s.Ledger,
		"teams":           &s.Teams,
		"users":           &s.Users,
		"intake_sequence": &s.IntakeSequence,
	}
}

// EncodeBuckets marshals every snapshot bucket as JSON keyed by bucket name.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	targets := bucketTargets(&s)
	out := make(map[string][]byte, len(targets))
	for _, name := range BucketNames {
		data, err := json.Marshal(targets[name])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// DecodeBucket unmarshals payload into the named bucket of s. Unknown buckets
// and empty payloads are ignored.
func DecodeBucket(s *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := bucketTargets(s)[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
