// Package models holds the gorm entities the control plane owns. Loosely
// typed bags (details, components, forensic snapshots) are stored as JSONB
// via gorm.io/datatypes so the storage boundary stays schemaless while the
// engines that populate them use named structs (see the invariant, incident,
// and health packages).
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

type IncidentStatus string

const (
	IncidentOpen        IncidentStatus = "OPEN"
	IncidentAutoHealing IncidentStatus = "AUTO_HEALING"
	IncidentEscalated   IncidentStatus = "ESCALATED"
	IncidentResolved    IncidentStatus = "RESOLVED"
	IncidentClosed      IncidentStatus = "CLOSED"
)

type Incident struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Priority         Priority       `gorm:"index:idx_incidents_priority_status;size:4" json:"priority"`
	Status           IncidentStatus `gorm:"index:idx_incidents_status_created;index:idx_incidents_priority_status;size:16" json:"status"`
	Title            string         `json:"title"`
	InvariantName    string         `gorm:"index:idx_incidents_invariant_created;size:128" json:"invariantName,omitempty"`
	Details          datatypes.JSONMap `json:"details,omitempty"`
	Forensic         datatypes.JSONMap `json:"forensic,omitempty"`
	AutoHealAttempts int            `json:"autoHealAttempts"`
	AutoHealed       bool           `json:"autoHealed"`
	CreatedAt        time.Time      `gorm:"index:idx_incidents_status_created;index:idx_incidents_invariant_created" json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	ResolvedAt       *time.Time     `json:"resolvedAt,omitempty"`
	EscalatedAt      *time.Time     `json:"escalatedAt,omitempty"`
	ResolvedBy       string         `json:"resolvedBy,omitempty"`
	ResolvedReason   string         `json:"resolvedReason,omitempty"`
}

func (Incident) TableName() string { return "incidents" }

type InvariantViolation struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	InvariantName string            `gorm:"index:idx_violations_invariant_created;size:128" json:"invariantName"`
	ShopID        string            `json:"shopId,omitempty"`
	EntityID      string            `json:"entityId"`
	EntityType    string            `json:"entityType"`
	Details       datatypes.JSONMap `json:"details,omitempty"`
	AutoCorrected bool              `json:"autoCorrected"`
	IncidentID    *uuid.UUID        `gorm:"type:uuid" json:"incidentId,omitempty"`
	CreatedAt     time.Time         `gorm:"index:idx_violations_invariant_created" json:"createdAt"`
}

func (InvariantViolation) TableName() string { return "invariant_violations" }

type DriftComponent struct {
	Passed bool `json:"passed"`
	Count  int  `json:"count"`
}

type DriftScore struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Score      int               `json:"score"`
	Components datatypes.JSONMap `json:"components"`
	CreatedAt  time.Time         `gorm:"index:idx_drift_created" json:"createdAt"`
}

func (DriftScore) TableName() string { return "drift_scores" }

type HealthComponents struct {
	Integrity  int `json:"integrity"`
	ErrorRate  int `json:"errorRate"`
	Latency    int `json:"latency"`
	Incidents  int `json:"incidents"`
	Backup     int `json:"backup"`
	Migrations int `json:"migrations"`
}

type HealthScore struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Score      int               `json:"score"`
	Components datatypes.JSONMap `json:"components"`
	SafeMode   bool              `json:"safeMode"`
	RecordedAt time.Time         `gorm:"index:idx_health_recorded" json:"recordedAt"`
}

func (HealthScore) TableName() string { return "health_scores" }

type SafeModeState struct {
	ID            int        `gorm:"primaryKey;autoIncrement:false" json:"-"`
	SafeMode      bool       `json:"safeMode"`
	Reason        string     `json:"reason,omitempty"`
	EnabledAt     *time.Time `json:"enabledAt,omitempty"`
	EnabledBy     string     `json:"enabledBy,omitempty"`
	OverrideToken string     `json:"-"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (SafeModeState) TableName() string { return "safe_mode_state" }

// SafeModeSingletonID is the fixed primary key of the single safe-mode row.
const SafeModeSingletonID = 1

type IdempotencyRecord struct {
	ID           string     `gorm:"primaryKey;size:255" json:"id"`
	ResponseBody []byte     `json:"responseBody,omitempty"`
	StatusCode   int        `json:"statusCode,omitempty"`
	Locked       bool       `json:"locked"`
	LockedAt     *time.Time `json:"lockedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `gorm:"index:idx_idempotency_expires" json:"expiresAt"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type SecurityEvent struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	EventType  string            `gorm:"size:64" json:"eventType"`
	IP         string            `json:"ip,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	Details    datatypes.JSONMap `json:"details,omitempty"`
	Severity   Severity          `json:"severity"`
	AutoBlocked bool             `json:"autoBlocked"`
	CreatedAt  time.Time         `gorm:"index:idx_security_events_created" json:"createdAt"`
}

func (SecurityEvent) TableName() string { return "security_events" }

type TargetType string

const (
	TargetIP     TargetType = "ip"
	TargetUserID TargetType = "user_id"
)

type SecurityBlock struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Target     string     `gorm:"uniqueIndex;size:255" json:"target"`
	TargetType TargetType `gorm:"size:16" json:"targetType"`
	Reason     string     `json:"reason"`
	BlockedAt  time.Time  `json:"blockedAt"`
	ExpiresAt  time.Time  `gorm:"index:idx_blocks_target_expires" json:"expiresAt"`
	LiftedAt   *time.Time `json:"liftedAt,omitempty"`
	LiftedBy   string     `json:"liftedBy,omitempty"`
}

func (SecurityBlock) TableName() string { return "security_blocks" }

type AuditChainEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	RowHash    string    `gorm:"index:idx_audit_row_hash;size:64" json:"rowHash"`
	PrevHash   string    `gorm:"size:64" json:"prevHash"`
	CreatedAt  time.Time `gorm:"index:idx_audit_created" json:"createdAt"`
}

func (AuditChainEntry) TableName() string { return "audit_chain_entries" }

// GenesisHash seeds the chain before any entry exists.
const GenesisHash = "GENESIS"

type PerfObservation struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Endpoint       string    `gorm:"size:255" json:"endpoint"`
	P95Ms          float64   `json:"p95Ms"`
	P99Ms          float64   `json:"p99Ms"`
	SampleCount    int       `json:"sampleCount"`
	SlowQuery      string    `json:"slowQuery,omitempty"`
	IndexSuggestion string   `json:"indexSuggestion,omitempty"`
	ObservedAt     time.Time `json:"observedAt"`
}

func (PerfObservation) TableName() string { return "perf_observations" }

type BackupStatus string

const (
	BackupPending BackupStatus = "PENDING"
	BackupPassed  BackupStatus = "PASSED"
	BackupFailed  BackupStatus = "FAILED"
)

type BackupValidation struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BackupFile    string       `json:"backupFile"`
	SizeKB        int64        `json:"sizeKb"`
	Checksum      string       `json:"checksum"`
	RestoreTested bool         `json:"restoreTested"`
	DriftClean    bool         `json:"driftClean"`
	IncidentID    *uuid.UUID   `gorm:"type:uuid" json:"incidentId,omitempty"`
	ValidatedAt   time.Time    `json:"validatedAt"`
	Status        BackupStatus `gorm:"index:idx_backup_status_validated;size:16" json:"status"`
}

func (BackupValidation) TableName() string { return "backup_validations" }

type DeploymentGateRun struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Passed      bool              `json:"passed"`
	Gates       datatypes.JSONMap `json:"gates"`
	Blockers    datatypes.JSONMap `json:"blockers"`
	TriggeredBy string            `json:"triggeredBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (DeploymentGateRun) TableName() string { return "deployment_gate_runs" }

type ExecutiveReport struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	PeriodDate   time.Time         `gorm:"uniqueIndex;type:date" json:"periodDate"`
	Report       datatypes.JSONMap `json:"report"`
	Dispatched   bool              `json:"dispatched"`
	DispatchedAt *time.Time        `json:"dispatchedAt,omitempty"`
}

func (ExecutiveReport) TableName() string { return "executive_reports" }
