package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/federicoroldos/sofull-site/internal/domain"
)

// EmailStateRepo provides typed DynamoDB operations for the email_state table.
// The item for a uid is the single serialization point for that user's
// notification decisions: claims go through a conditional write so that two
// concurrent requests for the same auth event cannot both win.
type EmailStateRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewEmailStateRepo(client *dynamodb.Client, tableName string) *EmailStateRepo {
	return &EmailStateRepo{client: client, tableName: tableName}
}

func (r *EmailStateRepo) Get(ctx context.Context, userID string) (*domain.EmailState, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("user_id", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("email state for %s: %w", userID, domain.ErrNotFound)
	}
	var s domain.EmailState
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ensure creates the root item with an empty events map when absent, so the
// nested SET in ClaimEvent always has a parent path. Idempotent.
func (r *EmailStateRepo) ensure(ctx context.Context, userID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("user_id", userID),
		UpdateExpression: aws.String("SET #ev = if_not_exists(#ev, :empty), #ws = if_not_exists(#ws, :false)"),
		ExpressionAttributeNames: map[string]string{
			"#ev": fieldEvents,
			"#ws": fieldWelcomeSent,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	return err
}

// ClaimEvent atomically records a pending entry for the event type. The
// conditional write succeeds only when no entry for the type exists yet, the
// existing entry belongs to a different event id, or the prior attempt
// failed. Returns domain.ErrAlreadyClaimed when another request holds an
// identical claim.
func (r *EmailStateRepo) ClaimEvent(ctx context.Context, userID string, t domain.EventType, ev domain.EmailEvent) error {
	if err := r.ensure(ctx, userID); err != nil {
		return fmt.Errorf("ensure email state: %w", err)
	}
	entry, err := attributevalue.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal email event: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("user_id", userID),
		UpdateExpression:    aws.String("SET #ev.#t = :entry"),
		ConditionExpression: aws.String("attribute_not_exists(#ev.#t) OR #ev.#t.event_id <> :eid OR #ev.#t.#st = :failed"),
		ExpressionAttributeNames: map[string]string{
			"#ev": fieldEvents,
			"#t":  string(t),
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":entry":  entry,
			":eid":    &types.AttributeValueMemberS{Value: ev.EventID},
			":failed": &types.AttributeValueMemberS{Value: string(domain.EventFailed)},
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("claim %s/%s: %w", userID, t, domain.ErrAlreadyClaimed)
		}
		return err
	}
	return nil
}

// MarkEventSent overwrites the claimed entry's status to sent.
func (r *EmailStateRepo) MarkEventSent(ctx context.Context, userID string, t domain.EventType, sentAt int64) error {
	return r.setEventOutcome(ctx, userID, t, domain.EventSent, "sent_at", sentAt)
}

// MarkEventFailed overwrites the claimed entry's status to failed, allowing a
// later retry with the same event id to reclaim it.
func (r *EmailStateRepo) MarkEventFailed(ctx context.Context, userID string, t domain.EventType, failedAt int64) error {
	return r.setEventOutcome(ctx, userID, t, domain.EventFailed, "failed_at", failedAt)
}

func (r *EmailStateRepo) setEventOutcome(ctx context.Context, userID string, t domain.EventType, status domain.EventStatus, tsField string, ts int64) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("user_id", userID),
		UpdateExpression:    aws.String("SET #ev.#t.#st = :status, #ev.#t.#ts = :ts"),
		ConditionExpression: aws.String("attribute_exists(#ev.#t)"),
		ExpressionAttributeNames: map[string]string{
			"#ev": fieldEvents,
			"#t":  string(t),
			"#st": "status",
			"#ts": tsField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":ts":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ts)},
		},
	})
	return err
}

// Merge applies the mutation's non-nil top-level fields without touching
// the events map. The attribute names live here, next to the table schema,
// so callers never spell them out.
func (r *EmailStateRepo) Merge(ctx context.Context, userID string, mut domain.EmailStateMutation) error {
	updates := map[string]interface{}{}
	if mut.WelcomeSent != nil {
		updates[fieldWelcomeSent] = *mut.WelcomeSent
	}
	if mut.LastAuthEventTime != nil {
		updates[fieldLastAuthEventTime] = *mut.LastAuthEventTime
	}
	if mut.LastLoginEmailAt != nil {
		updates[fieldLastLoginEmailAt] = *mut.LastLoginEmailAt
	}
	if len(updates) == 0 {
		return nil
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
