package bench

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wesleyorama2/zkbench/internal/coord"
)

// PrepareRoot leaves root existing and empty, holding data.
//
// A root left over from a previous run is deleted with the version read
// from Exists, so a concurrent run that recreated it in between makes this
// call fail with ErrVersionMismatch instead of racing silently. Children
// that vanish during cleanup are ignored.
func PrepareRoot(s coord.Session, root string, data []byte, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := coord.EnsurePath(s, root); err != nil {
		return fmt.Errorf("prepare root: %w", err)
	}

	st, err := s.Exists(root)
	if err != nil {
		return fmt.Errorf("prepare root: %w", err)
	}
	if st != nil {
		log.Info("removing stale benchmark root",
			zap.String("root", root),
			zap.Int32("version", st.Version),
			zap.Int32("children", st.NumChildren))
		if err := removeChildren(s, root); err != nil {
			return fmt.Errorf("prepare root: %w", err)
		}
		if err := s.Delete(root, st.Version); err != nil && !coord.IsNoNode(err) {
			return fmt.Errorf("prepare root: %w", err)
		}
	}

	if _, err := s.Create(root, data, coord.Persistent); err != nil {
		return fmt.Errorf("prepare root: %w", err)
	}
	return nil
}

// RemoveTree deletes p and everything below it. A missing p is not an error.
func RemoveTree(s coord.Session, p string) error {
	st, err := s.Exists(p)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}
	if err := removeChildren(s, p); err != nil {
		return err
	}
	if err := s.Delete(p, st.Version); err != nil && !coord.IsNoNode(err) {
		return err
	}
	return nil
}

func removeChildren(s coord.Session, p string) error {
	children, err := s.Children(p)
	if err != nil {
		if coord.IsNoNode(err) {
			return nil
		}
		return err
	}
	for _, name := range children {
		child := coord.Join(p, name)
		if err := removeChildren(s, child); err != nil {
			return err
		}
		if err := s.Delete(child, coord.AnyVersion); err != nil && !coord.IsNoNode(err) {
			return err
		}
	}
	return nil
}
