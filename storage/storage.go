// Package storage persists task rows in Azure Table Storage, one partition
// per user, and optionally publishes change events to an Azure Storage queue.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
	"github.com/sujal03/ProtonHub-TaskManger/schema"
)

// Storage provides access to the remote task table and the change queue.
type Storage struct {
	taskTable   *aztables.Client
	changeQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string. The change
// queue is optional; pass an empty name to skip publishing.
func New(connStr, tasksTable, changeQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{taskTable: svc.NewClient(tasksTable)}

	if changeQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute * 5,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 60,
					StatusCodes:   []int{408, 429, 500, 502, 503, 504},
				},
			},
		}
		cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		s.changeQueue = cq
	}
	return s, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string                `json:"Title"`
	Description string                `json:"Description"`
	Status      string                `json:"Status"`
	Priority    string                `json:"Priority"`
	DueDate     *aztables.EDMDateTime `json:"DueDate,omitempty"`
	CreatedAt   aztables.EDMDateTime  `json:"CreatedAt"`
}

func entityFromRow(userID string, r schema.Row) taskEntity {
	ent := taskEntity{
		Entity: aztables.Entity{
			PartitionKey: userID,
			RowKey:       r.ID,
		},
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
		CreatedAt:   aztables.EDMDateTime(r.CreatedAt),
	}
	if r.DueDate != nil {
		due := aztables.EDMDateTime(*r.DueDate)
		ent.DueDate = &due
	}
	return ent
}

func rowFromEntity(ent taskEntity) schema.Row {
	row := schema.Row{
		ID:          ent.RowKey,
		UserID:      ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      ent.Status,
		Priority:    ent.Priority,
		CreatedAt:   time.Time(ent.CreatedAt),
	}
	if ent.DueDate != nil {
		due := time.Time(*ent.DueDate)
		row.DueDate = &due
	}
	return row
}

// ListRows retrieves all task rows for the provided user.
func (s *Storage) ListRows(ctx context.Context, userID string) ([]schema.Row, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := []schema.Row{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, rowFromEntity(ent))
		}
	}
	return rows, nil
}

// InsertRow persists a new row and returns it with the assigned id and
// creation timestamp.
func (s *Storage) InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error) {
	row.ID = uuid.NewString()
	row.UserID = userID
	row.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(entityFromRow(userID, row))
	if err != nil {
		return schema.Row{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return schema.Row{}, err
	}
	return row, nil
}

// UpdateRow replaces the stored row with the provided one.
func (s *Storage) UpdateRow(ctx context.Context, userID string, row schema.Row) error {
	data, err := json.Marshal(entityFromRow(userID, row))
	if err != nil {
		return err
	}
	mode := aztables.UpdateModeReplace
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: mode})
	return err
}

// DeleteRow removes the row with the given id from the user's partition.
func (s *Storage) DeleteRow(ctx context.Context, userID, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, userID, id, nil)
	return err
}

// PublishChange sends a change event to the configured queue. A no-op when no
// queue was configured.
func (s *Storage) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	if s.changeQueue == nil {
		return nil
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.changeQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
