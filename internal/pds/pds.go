// Package pds implements the epoch-based private data service core (C5):
// case analysis for individual privacy loss, atomic two-phase multi-filter
// deduction, epoch-drop on out-of-budget, and intermediary report fan-out.
//
// A Core is strictly single-threaded per device instance: it carries no
// internal locking, matching the reference implementation's contract that
// embedders wanting multi-threaded access must wrap the whole service
// behind a mutex of their own.
package pds

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/eventstore"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/filterstore"
	"github.com/columbia/pdslib-firefox/internal/histogram"
	"github.com/columbia/pdslib-firefox/internal/pdserrors"
	"github.com/columbia/pdslib-firefox/pkg/telemetry"
)

// machineEpsilon mirrors Rust's f64::EPSILON: below this, a noise scale is
// treated as non-private (infinite requested budget), which can only go
// through if filters are also set to infinite capacity.
const machineEpsilon = 2.220446049250313e-16

// EpochRequest is the contract a query must satisfy to run through the
// core: a histogram.Request (attribution + bucketing) plus the epoch
// range, relevance selector, and sensitivity accessors the accounting case
// analysis needs.
type EpochRequest interface {
	histogram.Request

	EpochIDs() []uint64
	RelevantEventSelector() eventstore.RelevantEventSelector
	SingleEpochIndividualSensitivity(report histogram.Report, normType histogram.NormType) float64
	SingleEpochSourceIndividualSensitivity(report histogram.Report, normType histogram.NormType) float64
	ReportGlobalSensitivity() float64
	LaplaceNoiseScale() float64
}

// Report is what the core returns per destination URI: the report
// computed after dropping out-of-budget epochs, the report computed
// before (for debugging/accounting only — never to be sent off-device),
// and which filters were out of budget.
type Report struct {
	FilteredReport   histogram.Report
	UnfilteredReport histogram.Report
	OOBFilters       []filterid.ID
}

// Core is the epoch-based private data service.
type Core struct {
	Filters filterstore.Store
	Events  eventstore.Store
	Logger  *zap.Logger
}

// NewCore constructs a Core over the given storage backends. logger may
// be nil, in which case the core logs nothing.
func NewCore(filters filterstore.Store, events eventstore.Store, logger *zap.Logger) *Core {
	return &Core{Filters: filters, Events: events, Logger: logger}
}

// RegisterEvent stores e in event storage.
func (c *Core) RegisterEvent(ctx context.Context, e eventstore.Event) error {
	if c.Logger != nil {
		c.Logger.Debug("registering event", zap.Uint64("epoch_id", e.EpochID), zap.Uint64("event_id", e.ID))
	}
	if err := c.Events.AddEvent(ctx, e); err != nil {
		return pdserrors.StorageFailure("eventstore", "register_event", err)
	}
	return nil
}

// ComputeReport runs the full Cookie-Monster-style attribution pipeline:
// fetch relevant events per epoch, compute the unfiltered report for
// accounting, deduct the individual privacy loss from every implicated
// filter epoch by epoch (dropping epochs that go out of budget), then
// recompute the final report over only the surviving epochs. When the
// request has at least two intermediary URIs and therefore qualifies for
// the cross-report optimization, budget is deducted exactly once and the
// filtered per-intermediary reports are fanned out from that single
// deduction.
func (c *Core) ComputeReport(ctx context.Context, req EpochRequest) (map[string]Report, error) {
	start := time.Now()
	ctx, span := telemetry.StartComputeReportSpan(ctx, len(req.EpochIDs()))
	outcome := "ok"
	defer func() {
		span.End()
		telemetry.ObserveComputeReport(outcome, time.Since(start).Seconds())
	}()

	reportURIs := req.ReportURIs()
	if len(reportURIs.QuerierURIs) == 0 {
		outcome = "error"
		return nil, pdserrors.Misconfiguration("compute_report", errNoQuerier)
	}
	if len(reportURIs.QuerierURIs) > 1 {
		outcome = "error"
		return nil, pdserrors.Misconfiguration("compute_report", errMultiQuerier)
	}
	querierURI := reportURIs.QuerierURIs[0]

	relevant, err := eventstore.FromStore(ctx, c.Events, req.EpochIDs(), req.RelevantEventSelector())
	if err != nil {
		outcome = "error"
		return nil, pdserrors.StorageFailure("eventstore", "compute_report", err)
	}

	numEpochs := 0
	for _, epochID := range req.EpochIDs() {
		if len(relevant.ForEpoch(epochID)) > 0 {
			numEpochs++
		}
	}

	unfilteredResult := histogram.ComputeReport(req, relevant)
	unfilteredQuerierReport := unfilteredResult.URIReportMap[querierURI]

	var oobFilters []filterid.ID
	for _, epochID := range req.EpochIDs() {
		epochEvents := relevant.ForEpoch(epochID)

		individualLoss := c.computeEpochLoss(req, epochEvents, unfilteredQuerierReport, numEpochs)
		sourcesInEpoch := relevant.SourcesForEpoch(epochID)
		sourceLosses := c.computeEpochSourceLosses(req, sourcesInEpoch, unfilteredQuerierReport, numEpochs)

		dryRun, err := c.deductBudget(ctx, epochID, individualLoss, sourceLosses, reportURIs, true)
		if err != nil {
			outcome = "error"
			return nil, err
		}

		if dryRun.Status == budget.OutOfBudget {
			relevant.DropEpoch(epochID)
			oobFilters = append(oobFilters, dryRun.OOBFilters...)
			for _, id := range dryRun.OOBFilters {
				telemetry.RecordOOB(id.Kind.String())
			}
			if c.Logger != nil {
				c.Logger.Info("epoch dropped: out of budget", zap.Uint64("epoch_id", epochID))
			}
			continue
		}

		commit, err := c.deductBudget(ctx, epochID, individualLoss, sourceLosses, reportURIs, false)
		if err != nil {
			outcome = "error"
			return nil, err
		}
		if commit.Status != budget.Continue {
			outcome = "error"
			return nil, pdserrors.InvariantViolation("compute_report", errPhaseTwoFailed)
		}
	}

	filteredResult := histogram.ComputeReport(req, relevant)
	mainReport := Report{
		FilteredReport:   filteredResult.URIReportMap[querierURI],
		UnfilteredReport: unfilteredQuerierReport,
		OOBFilters:       oobFilters,
	}

	if isOptimizationQuery(filteredResult.URIReportMap) {
		intermediaryReports := make(map[string]Report, len(reportURIs.IntermediaryURIs))
		for _, intermediaryURI := range reportURIs.IntermediaryURIs {
			filtered, ok := filteredResult.URIReportMap[intermediaryURI]
			if !ok {
				continue
			}
			intermediaryReports[intermediaryURI] = Report{
				FilteredReport:   filtered,
				UnfilteredReport: unfilteredResult.URIReportMap[intermediaryURI],
				OOBFilters:       mainReport.OOBFilters,
			}
		}
		return intermediaryReports, nil
	}

	return map[string]Report{querierURI: mainReport}, nil
}

// isOptimizationQuery mirrors the reference heuristic: a fan-out mapping
// with at least 3 destination URIs implies at least 2 intermediaries
// besides the main querier entry, which is when per-intermediary reports
// are returned instead of a single querier report.
func isOptimizationQuery(siteToReport map[string]histogram.Report) bool {
	return len(siteToReport) >= 3
}

// AccountForPassivePrivacyLoss deducts privacyBudget from every filter
// implicated by uris, for each epoch in epochIDs, independently. This is
// best-effort: if an epoch goes out of budget, the loop stops immediately
// and epochs already committed in earlier iterations are NOT rolled back
// — the semantics of partial commit here are intentionally left as-is,
// matching an open question in the accounting design rather than a bug.
func (c *Core) AccountForPassivePrivacyLoss(ctx context.Context, epochIDs []uint64, privacyBudget budget.Budget, uris histogram.ReportRequestUris) (budget.Status, []filterid.ID, error) {
	ctx, span := telemetry.StartPassiveLossSpan(ctx, len(epochIDs))
	defer span.End()

	for _, epochID := range epochIDs {
		dryRun, err := c.deductBudget(ctx, epochID, privacyBudget, nil, uris, true)
		if err != nil {
			return budget.OutOfBudget, nil, err
		}
		if dryRun.Status != budget.Continue {
			return dryRun.Status, dryRun.OOBFilters, nil
		}

		commit, err := c.deductBudget(ctx, epochID, privacyBudget, nil, uris, false)
		if err != nil {
			return budget.OutOfBudget, nil, err
		}
		if commit.Status != budget.Continue {
			return budget.OutOfBudget, nil, pdserrors.InvariantViolation("account_for_passive_privacy_loss", errPhaseTwoFailed)
		}
	}
	return budget.Continue, nil, nil
}

type deductResult struct {
	Status     budget.Status
	OOBFilters []filterid.ID
}

// deductBudget builds the Nc/QTrigger/C/QSource filter set implicated by
// one epoch and either checks (dryRun=true) or commits (dryRun=false) the
// given losses against it.
func (c *Core) deductBudget(ctx context.Context, epochID uint64, loss budget.Budget, sourceLosses map[string]budget.Budget, uris histogram.ReportRequestUris, dryRun bool) (deductResult, error) {
	toConsume := make(map[filterid.ID]budget.Budget, len(uris.QuerierURIs)+2+len(sourceLosses))
	for _, querierURI := range uris.QuerierURIs {
		toConsume[filterid.NC(epochID, querierURI)] = loss
	}
	toConsume[filterid.QTrigger(epochID, uris.TriggerURI)] = loss
	toConsume[filterid.C(epochID)] = loss
	for source, sourceLoss := range sourceLosses {
		toConsume[filterid.QSource(epochID, source)] = sourceLoss
	}

	var oob []filterid.ID
	for id, requested := range toConsume {
		if dryRun {
			f, err := filterstore.GetOrNew(ctx, c.Filters, id)
			if err != nil {
				return deductResult{}, pdserrors.StorageFailure("filterstore", "deduct_budget_dry_run", err)
			}
			if f.CanConsume(requested, c.Logger) == budget.OutOfBudget {
				oob = append(oob, id)
			}
			continue
		}
		status, err := filterstore.TryConsume(ctx, c.Filters, id, requested)
		if err != nil {
			return deductResult{}, pdserrors.StorageFailure("filterstore", "deduct_budget_commit", err)
		}
		if status == budget.OutOfBudget {
			oob = append(oob, id)
		} else {
			telemetry.RecordFilterConsumed(id.Kind.String())
		}
	}

	if len(oob) > 0 {
		return deductResult{Status: budget.OutOfBudget, OOBFilters: oob}, nil
	}
	return deductResult{Status: budget.Continue}, nil
}

// computeEpochLoss is the pure-DP individual privacy loss for one epoch,
// following compute_individual_privacy_loss from Cookie Monster (Code
// Listing 1, https://arxiv.org/pdf/2405.16719).
func (c *Core) computeEpochLoss(req EpochRequest, epochEvents []eventstore.Event, unfilteredQuerierReport histogram.Report, numEpochs int) budget.Budget {
	// Case 1: epoch with no relevant events.
	if len(epochEvents) == 0 {
		return 0
	}

	var individualSensitivity float64
	if numEpochs == 1 {
		// Case 2: one epoch.
		individualSensitivity = req.SingleEpochIndividualSensitivity(unfilteredQuerierReport, histogram.NormL1)
	} else {
		// Case 3: multiple epochs.
		individualSensitivity = req.ReportGlobalSensitivity()
	}

	noiseScale := req.LaplaceNoiseScale()
	if math.Abs(noiseScale) < machineEpsilon {
		return budget.Infinite()
	}
	return budget.Budget(individualSensitivity / noiseScale)
}

// computeEpochSourceLosses is the device-epoch-source-level privacy loss,
// from Big Bird — the same case analysis as computeEpochLoss but at the
// finer (epoch, source) granularity.
func (c *Core) computeEpochSourceLosses(req EpochRequest, sourcesInEpoch map[string]struct{}, unfilteredQuerierReport histogram.Report, numEpochs int) map[string]budget.Budget {
	requestedSources := req.ReportURIs().SourceURIs
	numRequestedSources := len(requestedSources)
	noiseScale := req.LaplaceNoiseScale()

	losses := make(map[string]budget.Budget, numRequestedSources)
	for _, source := range requestedSources {
		_, hasRelevantEvents := sourcesInEpoch[source]

		var individualSensitivity float64
		switch {
		case !hasRelevantEvents:
			// Case 1: epoch-source with no relevant events.
			individualSensitivity = 0
		case numEpochs == 1 && numRequestedSources == 1:
			// Case 2: single epoch and single source with relevant events.
			individualSensitivity = req.SingleEpochSourceIndividualSensitivity(unfilteredQuerierReport, histogram.NormL1)
		default:
			// Case 3: multiple epochs or multiple sources.
			individualSensitivity = req.ReportGlobalSensitivity()
		}

		if math.Abs(noiseScale) < machineEpsilon {
			losses[source] = budget.Infinite()
			continue
		}
		losses[source] = budget.Budget(individualSensitivity / noiseScale)
	}
	return losses
}

type coreError string

func (e coreError) Error() string { return string(e) }

const (
	errNoQuerier      coreError = "report request must name exactly one querier uri"
	errMultiQuerier   coreError = "multi-querier (split report) requests are not supported"
	errPhaseTwoFailed coreError = "phase 2 commit failed unexpectedly after phase 1 dry run succeeded"
)
