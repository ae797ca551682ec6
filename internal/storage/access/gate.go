// Package access decides whether a principal may read a stored file.
package access

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
	"github.com/Laisky/campus-portal/library/log"
)

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID uint64
	Admin  bool
}

// Outcome is the result kind of an authorization.
type Outcome int

const (
	// Allow grants access.
	Allow Outcome = iota + 1
	// Deny refuses access; see Decision.Reason.
	Deny
	// NotFound means the file is not registered on the disk.
	NotFound
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Reason explains a decision.
type Reason string

const (
	ReasonAdmin            Reason = "admin"
	ReasonUploader         Reason = "uploader"
	ReasonMember           Reason = "member"
	ReasonPublicContext    Reason = "public_context"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonNotMember        Reason = "not_member"
	ReasonMissingContextID Reason = "missing_context_id"
	ReasonUnknownContext   Reason = "unknown_context"
	ReasonNotRegistered    Reason = "not_registered"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Record is the registry entry, nil when NotFound.
	Record *registry.FileRecord
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// RecordFinder looks up a file record on a disk.
type RecordFinder interface {
	Find(ctx context.Context, diskName disk.Name, filename string) (*registry.FileRecord, error)
}

// MembershipChecker answers organization membership questions.
type MembershipChecker interface {
	IsOrganizationMember(ctx context.Context, userID, organizationID uint64) (bool, error)
	// ActivityOrganization returns the organization owning the activity, or false if the activity is gone.
	ActivityOrganization(ctx context.Context, activityID uint64) (uint64, bool, error)
}

// Gate is a read-only authorization function over the registry and membership.
// It holds no mutable state and may be shared across goroutines.
type Gate struct {
	records    RecordFinder
	membership MembershipChecker
	logger     logSDK.Logger
}

// NewGate constructs a gate.
func NewGate(records RecordFinder, membership MembershipChecker, logger logSDK.Logger) (*Gate, error) {
	if records == nil {
		return nil, errors.New("record finder is required")
	}
	if membership == nil {
		return nil, errors.New("membership checker is required")
	}
	if logger == nil {
		logger = log.Logger.Named("storage_access")
	}
	return &Gate{records: records, membership: membership, logger: logger}, nil
}

// Authorize decides whether principal may read filename on diskName.
// A nil principal is unauthenticated. Lookup failures are returned as errors,
// never folded into a decision.
func (g *Gate) Authorize(ctx context.Context, diskName disk.Name, filename string, principal *Principal) (Decision, error) {
	rec, err := g.records.Find(ctx, diskName, filename)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return Decision{Outcome: NotFound, Reason: ReasonNotRegistered}, nil
		}
		return Decision{}, errors.Wrap(err, "find file record")
	}

	decision, err := g.decide(ctx, rec, principal)
	if err != nil {
		return Decision{}, err
	}
	decision.Record = rec

	if !decision.Allowed() {
		fields := []zap.Field{
			zap.String("disk", diskName.String()),
			zap.String("filename", filename),
			zap.String("reason", string(decision.Reason)),
		}
		if principal != nil {
			fields = append(fields, zap.Uint64("user_id", principal.UserID))
		}
		g.logger.Debug("file access denied", fields...)
	}
	return decision, nil
}

func (g *Gate) decide(ctx context.Context, rec *registry.FileRecord, principal *Principal) (Decision, error) {
	switch {
	case principal == nil:
		return deny(ReasonUnauthenticated), nil
	case principal.Admin:
		return allow(ReasonAdmin), nil
	case principal.UserID == rec.UploadedBy:
		return allow(ReasonUploader), nil
	}

	switch rec.Context {
	case registry.ContextNews, registry.ContextAnnouncement:
		return allow(ReasonPublicContext), nil
	case registry.ContextOrganization:
		if rec.ContextID == nil {
			return deny(ReasonMissingContextID), nil
		}
		return g.memberDecision(ctx, principal.UserID, *rec.ContextID)
	case registry.ContextActivity:
		if rec.ContextID == nil {
			return deny(ReasonMissingContextID), nil
		}
		orgID, ok, err := g.membership.ActivityOrganization(ctx, *rec.ContextID)
		if err != nil {
			return Decision{}, errors.Wrapf(err, "find organization of activity %d", *rec.ContextID)
		}
		if !ok {
			return deny(ReasonNotMember), nil
		}
		return g.memberDecision(ctx, principal.UserID, orgID)
	default:
		return deny(ReasonUnknownContext), nil
	}
}

func (g *Gate) memberDecision(ctx context.Context, userID, orgID uint64) (Decision, error) {
	member, err := g.membership.IsOrganizationMember(ctx, userID, orgID)
	if err != nil {
		return Decision{}, errors.Wrapf(err, "check membership of organization %d", orgID)
	}
	if !member {
		return deny(ReasonNotMember), nil
	}
	return allow(ReasonMember), nil
}

func allow(reason Reason) Decision {
	return Decision{Outcome: Allow, Reason: reason}
}

func deny(reason Reason) Decision {
	return Decision{Outcome: Deny, Reason: reason}
}
