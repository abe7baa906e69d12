package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"qrattend/internal/attendance"
)

// Firebase holds the app and its Firestore client.
type Firebase struct {
	App       *firebase.App
	Firestore *firestore.Client
}

// NewFirebase initialises the Firebase app. credentialsFile may be empty to use
// application default credentials.
func NewFirebase(ctx context.Context, projectID, credentialsFile string) (*Firebase, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: %w", err)
	}
	return &Firebase{App: app, Firestore: fs}, nil
}

// Close closes the Firestore client.
func (f *Firebase) Close() error {
	if f == nil || f.Firestore == nil {
		return nil
	}
	return f.Firestore.Close()
}

// FirestoreDays stores one document per date in the attendance collection.
type FirestoreDays struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreDays creates a day store on collection (default "attendance").
func NewFirestoreDays(client *firestore.Client, collection string) *FirestoreDays {
	if collection == "" {
		collection = "attendance"
	}
	return &FirestoreDays{client: client, collection: collection}
}

// FirestoreDocID turns a dd/mm/yyyy key into a valid document id.
func FirestoreDocID(date string) string {
	return strings.ReplaceAll(date, "/", "-")
}

func (s *FirestoreDays) ref(date string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(FirestoreDocID(date))
}

// Get loads the record for date.
func (s *FirestoreDays) Get(ctx context.Context, date string) (*attendance.DayRecord, error) {
	snap, err := s.ref(date).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, attendance.ErrDayNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec attendance.DayRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode day record: %w", err)
	}
	return &rec, nil
}

// Put writes rec inside a transaction if the stored version still equals rec.Version.
func (s *FirestoreDays) Put(ctx context.Context, rec attendance.DayRecord) error {
	if rec.Date == "" {
		return errors.New("day record has no date")
	}
	if rec.Present == nil {
		rec.Present = []attendance.AttendanceEntry{}
	}
	ref := s.ref(rec.Date)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var stored int64
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var cur attendance.DayRecord
			if err := snap.DataTo(&cur); err != nil {
				return err
			}
			stored = cur.Version
		}
		if stored != rec.Version {
			return attendance.ErrVersionConflict
		}
		next := rec
		next.Version = rec.Version + 1
		return tx.Set(ref, next)
	})
}

// FirestoreRoster queries the students collection.
type FirestoreRoster struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRoster creates a roster on collection (default "students").
func NewFirestoreRoster(client *firestore.Client, collection string) *FirestoreRoster {
	if collection == "" {
		collection = "students"
	}
	return &FirestoreRoster{client: client, collection: collection}
}

// FindByEmail returns every student document whose email matches.
func (r *FirestoreRoster) FindByEmail(ctx context.Context, email string) ([]attendance.Identity, error) {
	iter := r.client.Collection(r.collection).Where("email", "==", email).Documents(ctx)
	defer iter.Stop()

	var out []attendance.Identity
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var id attendance.Identity
		if err := doc.DataTo(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Roll < out[j].Roll })
	return out, nil
}

// Upsert writes a student document keyed by roll.
func (r *FirestoreRoster) Upsert(ctx context.Context, id attendance.Identity) error {
	if id.Roll == "" || id.Email == "" {
		return errors.New("roll and email required")
	}
	_, err := r.client.Collection(r.collection).Doc(id.Roll).Set(ctx, id)
	return err
}
