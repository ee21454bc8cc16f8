// Package strategy picks the learned model that applies to a fingerprinted
// document and decides whether extraction can proceed.
package strategy

import (
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// MatchKind records which lookup selected a model.
type MatchKind string

const (
	MatchNone    MatchKind = "none"
	MatchHash    MatchKind = "hash"
	MatchPattern MatchKind = "pattern"
)

// SelectModel returns the active model for fp: first by exact header hash,
// then by data topology pattern unless the pattern is UNKNOWN. When several
// models match in the same pass, the highest confidence score wins, then
// usage count, then success count, then list order.
func SelectModel(fp *model.StructuralFingerprint, models []model.LearnedFileModel) (*model.LearnedFileModel, MatchKind) {
	if fp == nil {
		return nil, MatchNone
	}

	if fp.HasHeaderHash() {
		if m := best(models, func(m model.LearnedFileModel) bool {
			ev := m.Evidence.Fingerprint
			return ev.HasHeaderHash() && *ev.HeaderHash == *fp.HeaderHash
		}); m != nil {
			return m, MatchHash
		}
	}

	if fp.DataTopologyPattern == "" || fp.DataTopologyPattern == model.UnknownPattern {
		return nil, MatchNone
	}
	if m := best(models, func(m model.LearnedFileModel) bool {
		return m.Evidence.Fingerprint.DataTopologyPattern == fp.DataTopologyPattern
	}); m != nil {
		return m, MatchPattern
	}
	return nil, MatchNone
}

func best(models []model.LearnedFileModel, match func(model.LearnedFileModel) bool) *model.LearnedFileModel {
	var winner *model.LearnedFileModel
	for i := range models {
		m := &models[i]
		if !m.Identity.IsActive || !match(*m) {
			continue
		}
		if winner == nil || outranks(m.Confidence, winner.Confidence) {
			winner = m
		}
	}
	if winner == nil {
		return nil
	}
	out := *winner
	return &out
}

func outranks(a, b model.ModelConfidence) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	return a.SuccessCount > b.SuccessCount
}
