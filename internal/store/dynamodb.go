package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/config"
	"github.com/docuport/portal-api/internal/metrics"
	"github.com/docuport/portal-api/internal/models"
)

const (
	emailIndex       = "email-index"
	distributorIndex = "distributor-index"
)

// DynamoDB implements CredentialStore and ResourceStore on DynamoDB.
// Email lookups go through the email-index GSI; the download side effects
// are applied with TransactWriteItems so the status flip and the
// notification read flips commit together or not at all.
type DynamoDB struct {
	client *dynamodb.Client
	tables config.DynamoDBConfig
	logger *logrus.Logger
}

var (
	_ CredentialStore = (*DynamoDB)(nil)
	_ ResourceStore   = (*DynamoDB)(nil)
)

func NewDynamoDB(client *dynamodb.Client, tables config.DynamoDBConfig, logger *logrus.Logger) *DynamoDB {
	return &DynamoDB{client: client, tables: tables, logger: logger}
}

// documentItem is the stored shape of a document plus its assignment.
// The pair is one item so assignment updates are single-item writes.
type documentItem struct {
	DocumentID string            `dynamodbav:"document_id"`
	Document   models.Document   `dynamodbav:"document"`
	Assignment models.Assignment `dynamodbav:"assignment"`
}

func (d *DynamoDB) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	start := time.Now()
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tables.UsersTableName),
		IndexName:              aws.String(emailIndex),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	metrics.RecordStoreOperation("credential", "find_user_by_email", statusLabel(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Items[0], &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

func (d *DynamoDB) CreateUser(ctx context.Context, user *models.User) error {
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	start := time.Now()
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tables.UsersTableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	metrics.RecordStoreOperation("credential", "create_user", statusLabel(err), time.Since(start))
	if err != nil {
		if isConditionalCheckFailure(err) {
			return ErrConflict
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (d *DynamoDB) UpdateUserStatus(ctx context.Context, userID string, status models.AccountStatus) error {
	start := time.Now()
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tables.UsersTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET #s = :status, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	metrics.RecordStoreOperation("credential", "update_user_status", statusLabel(err), time.Since(start))
	if err != nil {
		if isConditionalCheckFailure(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update user status: %w", err)
	}
	return nil
}

func (d *DynamoDB) CreateDocument(ctx context.Context, doc *models.Document, assignment *models.Assignment, notifications []models.Notification) error {
	docMap, err := attributevalue.MarshalMap(documentItem{
		DocumentID: doc.DocumentID,
		Document:   *doc,
		Assignment: *assignment,
	})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(d.tables.DocumentsTableName),
			Item:                docMap,
			ConditionExpression: aws.String("attribute_not_exists(document_id)"),
		},
	}}

	for i := range notifications {
		noteMap, err := attributevalue.MarshalMap(notifications[i])
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(d.tables.NotificationsTableName),
				Item:      noteMap,
			},
		})
	}

	start := time.Now()
	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	metrics.RecordStoreOperation("resource", "create_document", statusLabel(err), time.Since(start))
	if err != nil {
		if isTransactionConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("create document transaction: %w", err)
	}
	return nil
}

func (d *DynamoDB) FindDocument(ctx context.Context, documentID string) (*models.Document, error) {
	item, err := d.getDocumentItem(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &item.Document, nil
}

func (d *DynamoDB) FindAssignment(ctx context.Context, documentID string) (*models.Assignment, error) {
	item, err := d.getDocumentItem(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &item.Assignment, nil
}

func (d *DynamoDB) getDocumentItem(ctx context.Context, documentID string) (*documentItem, error) {
	start := time.Now()
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tables.DocumentsTableName),
		Key: map[string]types.AttributeValue{
			"document_id": &types.AttributeValueMemberS{Value: documentID},
		},
	})
	metrics.RecordStoreOperation("resource", "get_document", statusLabel(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item documentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &item, nil
}

func (d *DynamoDB) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	start := time.Now()
	records := make([]DocumentRecord, 0)

	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.tables.DocumentsTableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordStoreOperation("resource", "list_documents", "error", time.Since(start))
			return nil, fmt.Errorf("scan documents: %w", err)
		}
		var items []documentItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
		for _, item := range items {
			records = append(records, DocumentRecord{Document: item.Document, Assignment: item.Assignment})
		}
	}

	metrics.RecordStoreOperation("resource", "list_documents", "success", time.Since(start))
	return records, nil
}

func (d *DynamoDB) CreateDistributor(ctx context.Context, distributor *models.Distributor) error {
	item, err := attributevalue.MarshalMap(distributor)
	if err != nil {
		return fmt.Errorf("marshal distributor: %w", err)
	}

	start := time.Now()
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tables.DistributorsTableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(distributor_id)"),
	})
	metrics.RecordStoreOperation("resource", "create_distributor", statusLabel(err), time.Since(start))
	if err != nil {
		if isConditionalCheckFailure(err) {
			return ErrConflict
		}
		return fmt.Errorf("put distributor: %w", err)
	}
	return nil
}

func (d *DynamoDB) FindDistributorByEmail(ctx context.Context, email string) (*models.Distributor, error) {
	start := time.Now()
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tables.DistributorsTableName),
		IndexName:              aws.String(emailIndex),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	metrics.RecordStoreOperation("resource", "find_distributor_by_email", statusLabel(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query distributors: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	var distributor models.Distributor
	if err := attributevalue.UnmarshalMap(result.Items[0], &distributor); err != nil {
		return nil, fmt.Errorf("unmarshal distributor: %w", err)
	}
	return &distributor, nil
}

func (d *DynamoDB) ListDistributors(ctx context.Context) ([]models.Distributor, error) {
	start := time.Now()
	distributors := make([]models.Distributor, 0)

	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.tables.DistributorsTableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordStoreOperation("resource", "list_distributors", "error", time.Since(start))
			return nil, fmt.Errorf("scan distributors: %w", err)
		}
		var items []models.Distributor
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal distributors: %w", err)
		}
		distributors = append(distributors, items...)
	}

	metrics.RecordStoreOperation("resource", "list_distributors", "success", time.Since(start))
	return distributors, nil
}

func (d *DynamoDB) ListNotifications(ctx context.Context, distributorID string, unreadOnly bool) ([]models.Notification, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tables.NotificationsTableName),
		IndexName:              aws.String(distributorIndex),
		KeyConditionExpression: aws.String("distributor_id = :did"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":did": &types.AttributeValueMemberS{Value: distributorID},
		},
	}
	if unreadOnly {
		input.FilterExpression = aws.String("#r = :unread")
		input.ExpressionAttributeNames = map[string]string{"#r": "read"}
		input.ExpressionAttributeValues[":unread"] = &types.AttributeValueMemberBOOL{Value: false}
	}

	start := time.Now()
	notifications := make([]models.Notification, 0)
	paginator := dynamodb.NewQueryPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordStoreOperation("resource", "list_notifications", "error", time.Since(start))
			return nil, fmt.Errorf("query notifications: %w", err)
		}
		var items []models.Notification
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal notifications: %w", err)
		}
		notifications = append(notifications, items...)
	}

	metrics.RecordStoreOperation("resource", "list_notifications", "success", time.Since(start))
	return notifications, nil
}

func (d *DynamoDB) FindNotification(ctx context.Context, notificationID string) (*models.Notification, error) {
	start := time.Now()
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tables.NotificationsTableName),
		Key: map[string]types.AttributeValue{
			"notification_id": &types.AttributeValueMemberS{Value: notificationID},
		},
	})
	metrics.RecordStoreOperation("resource", "get_notification", statusLabel(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var notification models.Notification
	if err := attributevalue.UnmarshalMap(result.Item, &notification); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	return &notification, nil
}

func (d *DynamoDB) MarkNotificationRead(ctx context.Context, notificationID string) error {
	start := time.Now()
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tables.NotificationsTableName),
		Key: map[string]types.AttributeValue{
			"notification_id": &types.AttributeValueMemberS{Value: notificationID},
		},
		UpdateExpression:    aws.String("SET #r = :read, read_at = :now"),
		ConditionExpression: aws.String("attribute_exists(notification_id)"),
		ExpressionAttributeNames: map[string]string{
			"#r": "read",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":read": &types.AttributeValueMemberBOOL{Value: true},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	metrics.RecordStoreOperation("resource", "mark_notification_read", statusLabel(err), time.Since(start))
	if err != nil {
		if isConditionalCheckFailure(err) {
			return ErrNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (d *DynamoDB) UnreadCount(ctx context.Context, documentID, distributorID string) (int, error) {
	notifications, err := d.ListNotifications(ctx, distributorID, true)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range notifications {
		if n.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (d *DynamoDB) CompleteDownload(ctx context.Context, documentID, distributorID string) (models.AssignmentStatus, error) {
	item, err := d.getDocumentItem(ctx, documentID)
	if err != nil {
		return "", err
	}

	unread, err := d.ListNotifications(ctx, distributorID, true)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	writes := make([]types.TransactWriteItem, 0, len(unread)+1)

	if item.Assignment.Status == models.AssignmentPending {
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(d.tables.DocumentsTableName),
				Key: map[string]types.AttributeValue{
					"document_id": &types.AttributeValueMemberS{Value: documentID},
				},
				UpdateExpression:    aws.String("SET assignment.#s = :done, assignment.updated_at = :now"),
				ConditionExpression: aws.String("attribute_exists(document_id)"),
				ExpressionAttributeNames: map[string]string{
					"#s": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":done": &types.AttributeValueMemberS{Value: string(models.AssignmentDone)},
					":now":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
				},
			},
		})
	}

	for _, n := range unread {
		if n.DocumentID != documentID {
			continue
		}
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(d.tables.NotificationsTableName),
				Key: map[string]types.AttributeValue{
					"notification_id": &types.AttributeValueMemberS{Value: n.NotificationID},
				},
				UpdateExpression: aws.String("SET #r = :read, read_at = :now"),
				ExpressionAttributeNames: map[string]string{
					"#r": "read",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":read": &types.AttributeValueMemberBOOL{Value: true},
					":now":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
				},
			},
		})
	}

	// Nothing to flip: a repeat download by a distributor whose
	// notifications are all read on an already-DONE assignment.
	if len(writes) == 0 {
		return item.Assignment.Status, nil
	}

	start := time.Now()
	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	metrics.RecordStoreOperation("resource", "complete_download", statusLabel(err), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("complete download transaction: %w", err)
	}

	return models.AssignmentDone, nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func isConditionalCheckFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func isTransactionConflict(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
