// Package mock holds hand-maintained gomock doubles for rangesync's external
// interfaces (ChainSegmentProcessor, RangeRequester, PeerReporter), in the
// shape generated mocks take across the corpus (cf. api/client/beacon's
// MockHealthClient).
package mock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/prysmaticlabs/rangesync/beacon-chain/sync/rangesync"
)

// MockChainSegmentProcessor is a mock of the ChainSegmentProcessor interface.
type MockChainSegmentProcessor struct {
	ctrl     *gomock.Controller
	recorder *MockChainSegmentProcessorMockRecorder
}

// MockChainSegmentProcessorMockRecorder is the mock recorder for MockChainSegmentProcessor.
type MockChainSegmentProcessorMockRecorder struct {
	mock *MockChainSegmentProcessor
}

// NewMockChainSegmentProcessor creates a new mock instance.
func NewMockChainSegmentProcessor(ctrl *gomock.Controller) *MockChainSegmentProcessor {
	mock := &MockChainSegmentProcessor{ctrl: ctrl}
	mock.recorder = &MockChainSegmentProcessorMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockChainSegmentProcessor) EXPECT() *MockChainSegmentProcessorMockRecorder {
	return m.recorder
}

// ProcessChainSegment mocks base method.
func (m *MockChainSegmentProcessor) ProcessChainSegment(arg0 context.Context, arg1 []rangesync.SignedBlock) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ProcessChainSegment", arg0, arg1)
	ret0, _ := ret[0].(error)
	return ret0
}

// ProcessChainSegment indicates an expected call of ProcessChainSegment.
func (mr *MockChainSegmentProcessorMockRecorder) ProcessChainSegment(arg0, arg1 any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ProcessChainSegment", reflect.TypeOf((*MockChainSegmentProcessor)(nil).ProcessChainSegment), arg0, arg1)
}

// MockRangeRequester is a mock of the RangeRequester interface.
type MockRangeRequester struct {
	ctrl     *gomock.Controller
	recorder *MockRangeRequesterMockRecorder
}

// MockRangeRequesterMockRecorder is the mock recorder for MockRangeRequester.
type MockRangeRequesterMockRecorder struct {
	mock *MockRangeRequester
}

// NewMockRangeRequester creates a new mock instance.
func NewMockRangeRequester(ctrl *gomock.Controller) *MockRangeRequester {
	mock := &MockRangeRequester{ctrl: ctrl}
	mock.recorder = &MockRangeRequesterMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRangeRequester) EXPECT() *MockRangeRequesterMockRecorder {
	return m.recorder
}

// DownloadBeaconBlocksByRange mocks base method.
func (m *MockRangeRequester) DownloadBeaconBlocksByRange(arg0 context.Context, arg1 rangesync.Peer, arg2 rangesync.BlockRangeRequest) ([]rangesync.SignedBlock, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DownloadBeaconBlocksByRange", arg0, arg1, arg2)
	ret0, _ := ret[0].([]rangesync.SignedBlock)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// DownloadBeaconBlocksByRange indicates an expected call of DownloadBeaconBlocksByRange.
func (mr *MockRangeRequesterMockRecorder) DownloadBeaconBlocksByRange(arg0, arg1, arg2 any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DownloadBeaconBlocksByRange", reflect.TypeOf((*MockRangeRequester)(nil).DownloadBeaconBlocksByRange), arg0, arg1, arg2)
}

// MockPeerReporter is a mock of the PeerReporter interface.
type MockPeerReporter struct {
	ctrl     *gomock.Controller
	recorder *MockPeerReporterMockRecorder
}

// MockPeerReporterMockRecorder is the mock recorder for MockPeerReporter.
type MockPeerReporterMockRecorder struct {
	mock *MockPeerReporter
}

// NewMockPeerReporter creates a new mock instance.
func NewMockPeerReporter(ctrl *gomock.Controller) *MockPeerReporter {
	mock := &MockPeerReporter{ctrl: ctrl}
	mock.recorder = &MockPeerReporterMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockPeerReporter) EXPECT() *MockPeerReporterMockRecorder {
	return m.recorder
}

// ReportPeer mocks base method.
func (m *MockPeerReporter) ReportPeer(arg0 rangesync.Peer, arg1 rangesync.ReportAction, arg2 string) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ReportPeer", arg0, arg1, arg2)
}

// ReportPeer indicates an expected call of ReportPeer.
func (mr *MockPeerReporterMockRecorder) ReportPeer(arg0, arg1, arg2 any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReportPeer", reflect.TypeOf((*MockPeerReporter)(nil).ReportPeer), arg0, arg1, arg2)
}
