package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/element"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
)

// SetLinkContent stores the payload read from r and points link at it.
// The new payload is written and referenced before the previous reference
// is dropped, so on failure the link keeps its prior content.
func (s *Storage) SetLinkContent(ctx context.Context, link addr.Addr, r io.Reader) error {
	if s.content == nil {
		return backendErr(errors.New("no content store configured"))
	}
	if err := s.aliveLink(link); err != nil {
		return err
	}
	sum, data, err := content.SumReader(r)
	if err != nil {
		return errors.Wrap(err, "read link content")
	}
	if err := s.content.Write(ctx, sum, bytes.NewReader(data)); err != nil {
		if errors.Is(err, content.ErrChecksumCollision) {
			s.logger.WithField("checksum", sum.String()).WithField("addr", link.String()).Panic("content checksum collision")
		}
		return backendErr(err)
	}
	if err := s.content.AddReference(ctx, link, sum); err != nil {
		s.discardUnreferenced(ctx, link, sum)
		return backendErr(err)
	}
	var previous content.Checksum
	erased := false
	s.graph.Lock()
	err = s.update(link, func(el *element.Element) {
		if !el.IsAlive() || !el.Type.IsLink() {
			erased = true
			return
		}
		previous = el.Checksum
		el.Checksum = sum
	})
	s.graph.Unlock()
	if err == nil && erased {
		err = ErrAlreadyErased
	}
	if err != nil {
		if rmErr := s.content.RemoveReference(ctx, link, sum); rmErr != nil {
			s.logger.WithError(rmErr).WithField("addr", link.String()).Warn("failed to roll back content reference")
		}
		return err
	}
	if !previous.IsZero() && previous != sum {
		if err := s.content.RemoveReference(ctx, link, previous); err != nil {
			s.logger.WithError(err).WithField("addr", link.String()).Warn("failed to release previous link content")
		}
	}
	s.bus.Emit(event.ContentChanged, link, addr.Empty)
	return nil
}

// discardUnreferenced drops a payload written for link whose reference
// could not be recorded. A payload the link already pointed at is kept.
func (s *Storage) discardUnreferenced(ctx context.Context, link addr.Addr, sum content.Checksum) {
	if el, err := s.load(link); err == nil && el.Checksum == sum {
		return
	}
	if err := s.content.RemoveReference(ctx, link, sum); err != nil {
		s.logger.WithError(err).WithField("addr", link.String()).Warn("failed to discard unreferenced content")
	}
}

// GetLinkContent opens the payload of link. A link without content yields
// content.ErrNotFound.
func (s *Storage) GetLinkContent(ctx context.Context, link addr.Addr) (io.ReadCloser, error) {
	el, err := s.load(link)
	if err != nil {
		return nil, err
	}
	if !el.Type.IsLink() {
		return nil, errors.Wrapf(ErrWrongElementKind, "%v is a %v", link, el.Kind())
	}
	sum, ok := el.Content()
	if !ok {
		return nil, content.ErrNotFound
	}
	if s.content == nil {
		return nil, backendErr(errors.New("no content store configured"))
	}
	reader, err := s.content.Read(ctx, sum)
	if err != nil {
		return nil, backendErr(err)
	}
	return reader, nil
}

// GetLinkChecksum returns the content checksum of link.
func (s *Storage) GetLinkChecksum(link addr.Addr) (content.Checksum, bool, error) {
	el, err := s.load(link)
	if err != nil {
		return content.Checksum{}, false, err
	}
	if !el.Type.IsLink() {
		return content.Checksum{}, false, errors.Wrapf(ErrWrongElementKind, "%v is a %v", link, el.Kind())
	}
	sum, ok := el.Content()
	return sum, ok, nil
}

// FindLinksByChecksum lists the live links whose content has checksum sum.
func (s *Storage) FindLinksByChecksum(ctx context.Context, sum content.Checksum) ([]addr.Addr, error) {
	if s.content == nil {
		return nil, backendErr(errors.New("no content store configured"))
	}
	found, err := s.content.FindByChecksum(ctx, sum)
	if err != nil {
		return nil, backendErr(err)
	}
	ret := found[:0]
	for _, a := range found {
		if s.IsAlive(a) {
			ret = append(ret, a)
		}
	}
	return ret, nil
}

func (s *Storage) aliveLink(link addr.Addr) error {
	el, err := s.load(link)
	if err != nil {
		return err
	}
	if el.Kind() != sctype.KindLink {
		return errors.Wrapf(ErrWrongElementKind, "%v is a %v", link, el.Kind())
	}
	if !el.IsAlive() {
		return ErrAlreadyErased
	}
	return nil
}
