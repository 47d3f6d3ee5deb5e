package msckf

import (
	"github.com/milosgajdos/go-vio/feature"
	"github.com/milosgajdos/go-vio/kalman"
	"github.com/pkg/errors"
)

// ProcessImage stores the current IMU pose in the sliding window, merges
// feature observations obs made from it and corrects the filter state with
// every lost feature track long enough to be triangulated. Poses no longer
// observed by any unused track are removed from the window afterwards.
// Observation points are pixel coordinates in the same image plane
// the camera model projects into.
// It returns ErrNotInitialized if the filter has not been initialized.
func (k *MSCKF) ProcessImage(obs []feature.Observation) (*kalman.Report, error) {
	if !k.initialized {
		return nil, ErrNotInitialized
	}

	rep := &kalman.Report{}
	rep.Lost = k.features.MarkLost()

	if k.w.Full() {
		if err := k.removeFrame(0); err != nil {
			return nil, err
		}
		rep.Removed++
	}

	if err := k.augment(); err != nil {
		return nil, err
	}

	frame := k.w.Len() - 1
	rep.Frame = frame
	rep.Merge = k.features.Observe(frame, obs)

	k.batch.Reset()
	for _, rec := range k.features.Candidates() {
		rec.Used = true

		if len(rec.Points) < k.minTrack {
			rep.Deferred++
			continue
		}

		m, tri, err := k.measure(rec)
		if err != nil {
			rep.Rejected++
			k.log.Debugw("feature rejected", "id", rec.ID, "observations", len(rec.Points), "error", err)
			continue
		}

		if k.gate != nil && !k.gate.Accept(m.r, m.h, k.p.Sym(), k.sigma) {
			rep.Gated++
			k.log.Debugw("feature gated", "id", rec.ID, "point", tri.Point)
			continue
		}

		k.batch.Add(m)
		rep.Measurements++
	}

	if k.batch.Len() > 0 {
		r, h := k.batch.Stack(k.p.Dim())
		rep.Rows = k.batch.Rows()

		if err := k.correct(r, h); err != nil {
			k.log.Warnw("correction skipped", "frame", frame, "rows", rep.Rows, "error", err)
		} else {
			rep.Corrected = true
		}
	}

	removed := 0
	for i := 0; i < frame; i++ {
		idx := i - removed
		if !k.features.Consumed(idx) {
			continue
		}

		if err := k.removeFrame(idx); err != nil {
			return nil, err
		}
		removed++
	}

	rep.Removed += removed
	rep.Window = k.w.Len()

	k.log.Debugw("image processed", "report", rep.String())

	return rep, nil
}

// augment appends the current IMU pose to the sliding window.
func (k *MSCKF) augment() error {
	if err := k.w.Append(k.x.Pose()); err != nil {
		return errors.Wrap(err, "augment")
	}
	k.p.Augment()

	return nil
}

// removeFrame removes i-th pose from the window along with its covariance
// and feature observations.
func (k *MSCKF) removeFrame(i int) error {
	if err := k.w.RemoveAt(i); err != nil {
		return err
	}

	if err := k.p.RemoveSlot(i); err != nil {
		return err
	}

	evicted := k.features.DropFrame(i)
	if evicted > 0 {
		k.log.Debugw("feature tracks evicted", "frame", i, "count", evicted)
	}

	return nil
}
