package snapshot

import "fmt"

// Validate checks the invariants of spec §3/§8 against a completed
// Snapshot. It is used by capture's retry path (a violated invariant after
// all passes means something degraded badly enough to retry) and directly by
// property tests.
func (s *Snapshot) Validate() error {
	for id := range s.Elements {
		if _, ok := s.BackendNodeMap[id]; !ok {
			return fmt.Errorf("snapshot: %s in Elements but missing from BackendNodeMap", id)
		}
		if _, ok := s.XPathMap[id]; !ok {
			return fmt.Errorf("snapshot: %s in Elements but missing from XPathMap", id)
		}
		frameIndex, _, err := Parse(id)
		if err != nil {
			return fmt.Errorf("snapshot: invalid EncodedId %s: %w", id, err)
		}
		if frameIndex != 0 {
			if _, ok := s.FrameMap[frameIndex]; !ok {
				return fmt.Errorf("snapshot: %s references unknown frameIndex %d", id, frameIndex)
			}
		}
	}
	return nil
}
