// vi: sw=4 ts=4:

/*

	Mnemonic:	simlog
	Abstract:	Run configuration (Settings) and the structured per-event
				JSON log sink (Sink). Two distinct logging surfaces, per
				SPEC_FULL.md's AMBIENT STACK section: `sheep` (this
				package's bleater, see init.go) carries operator-facing
				diagnostics, while Sink carries the one-JSON-object-per-line
				event stream spec §6 requires, built on zap's JSON core so
				that writing stays streaming rather than buffering a whole
				run in memory.

	Date:		31 July 2026
	Author:		E. Scott Daniels

	CFG:		Recognised settings keys (spec §6):
					exec_numMotes, exec_numSlotframesPerRun, tsch_slotDuration,
					tsch_slotframeLength, phy_numChans, conn_class, conn_trace,
					sf_class, app_pkPeriod, app_pkPeriodVar, rpl_daoPeriod,
					tsch_probBcast_ebDioProb, tsch_probBcast_dioProb,
					secjoin_enabled, fragmentation, fragmentation_ff_vrb_table_size,
					sixlowpan_reassembly_buffers_num, top_squareSide, seed.
*/

package managers

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConnClass enumerates the supported Connectivity implementations.
type ConnClass int

const (
	ConnFullyMeshed ConnClass = iota
	ConnLinear
	ConnPisterHack
	ConnTrace
)

// SfClass enumerates the supported Scheduling Functions.
type SfClass int

const (
	SfMsf SfClass = iota
	SfNone
)

// Fragmentation enumerates the 6LoWPAN fragment-handling strategies.
type Fragmentation int

const (
	FragPerHopReassembly Fragmentation = iota
	FragFragmentForwarding
)

// Settings is the flat recognised-option map described in spec §6.
type Settings struct {
	ExecNumMotes            int
	ExecNumSlotframesPerRun int

	TschSlotDuration    float64 // seconds
	TschSlotframeLength int     // slots

	PhyNumChans int

	ConnClass      ConnClass
	ConnTrace      string // file path, used iff ConnClass == ConnTrace
	ConnCoordsFile string // optional scenario file of fixed (x,y) mote positions, used iff ConnClass == ConnPisterHack

	SfClass SfClass

	AppPkPeriod    float64
	AppPkPeriodVar float64

	RplDaoPeriod float64

	TschProbBcastEbDioProb float64
	TschProbBcastDioProb   float64

	SecjoinEnabled bool

	Fragmentation                Fragmentation
	FragmentationFfVrbTableSize  int
	SixlowpanReassemblyBufNum    int

	TopSquareSide float64 // km, used by PisterHack placement

	Seed int64
}

// Default returns a Settings populated with the teacher-observed sane defaults.
func Default() *Settings {
	return &Settings{
		ExecNumMotes:                10,
		ExecNumSlotframesPerRun:     100,
		TschSlotDuration:            0.010,
		TschSlotframeLength:         101,
		PhyNumChans:                 16,
		ConnClass:                   ConnFullyMeshed,
		SfClass:                     SfMsf,
		AppPkPeriod:                 10,
		AppPkPeriodVar:              0.05,
		RplDaoPeriod:                60,
		TschProbBcastEbDioProb:      0.50,
		TschProbBcastDioProb:        0.50,
		SecjoinEnabled:              true,
		Fragmentation:               FragPerHopReassembly,
		FragmentationFfVrbTableSize: 50,
		SixlowpanReassemblyBufNum:   4,
		TopSquareSide:               2.0,
		Seed:                        1,
	}
}

// --- event types (spec §6, exhaustive for KPI computation) ---

type EventType string

const (
	EvTschSynced           EventType = "tsch.synced"
	EvSecjoinJoined        EventType = "secjoin.joined"
	EvSecjoinTx            EventType = "secjoin.tx"
	EvAppTx                EventType = "app.tx"
	EvAppRx                EventType = "app.rx"
	EvRadioStats           EventType = "radio.stats"
	EvTschAddCell          EventType = "tsch.add_cell"
	EvTschDeleteCell       EventType = "tsch.delete_cell"
	EvTschTxDone           EventType = "tsch.txdone"
	EvSixpTxnCompleted     EventType = "sixp.transaction_completed"
	EvSixpTxnError         EventType = "sixp.transaction_error"
	EvTschTxQueueLength    EventType = "tsch.txqueue_length"
	EvRplChurn             EventType = "rpl.churn"
	EvPacketDropped        EventType = "packet.dropped"
	EvPropInterference     EventType = "prop.interference"
)

// DropReason is the closed set of reasons a packet may be dropped (spec §6/§7).
type DropReason string

const (
	DropNoRoute               DropReason = "NO_ROUTE"
	DropTxQueueFull           DropReason = "TXQUEUE_FULL"
	DropNoTxCells             DropReason = "NO_TX_CELLS"
	DropMaxRetries            DropReason = "MAX_RETRIES"
	DropTimeExceeded          DropReason = "TIME_EXCEEDED"
	DropRankError             DropReason = "RANK_ERROR"
	DropReassemblyBufferFull  DropReason = "REASSEMBLY_BUFFER_FULL"
	DropVrbTableFull          DropReason = "VRB_TABLE_FULL"
)

/*
	Sink is the streaming per-event JSON log: a zap logger built from a
	bare JSON core (message, level, name, caller and time keys all suppressed)
	so that Emit produces exactly the object spec §6 asks for - no
	buffering of the run, one flush-free Write per line.
*/
type Sink struct {
	log   *zap.Logger
	runID string
}

func Mk_sink(w io.Writer, settings *Settings) *Sink {
	cfg := zapcore.EncoderConfig{
		MessageKey: "", // no free-text message, only structured fields
		LevelKey:   "",
		NameKey:    "",
		CallerKey:  "",
		TimeKey:    "", // time is carried as _asn, not wall clock
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), zapcore.DebugLevel)
	s := &Sink{
		log:   zap.New(core),
		runID: uuid.NewString(),
	}
	s.log.Info("", zap.String("_type", "settings"), zap.Any("settings", settings))
	return s
}

// Emit writes one event line with the required _asn/_type/_run_id keys plus fields.
func (s *Sink) Emit(asn uint64, t EventType, fields map[string]any) {
	fs := make([]zap.Field, 0, len(fields)+3)
	fs = append(fs, zap.Uint64("_asn", asn), zap.String("_type", string(t)), zap.String("_run_id", s.runID))
	for k, v := range fields {
		fs = append(fs, zap.Any(k, v))
	}
	s.log.Info("", fs...)
}

func (s *Sink) Close() error {
	return s.log.Sync()
}
