package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/versant-edu/versant-hub/internal/domain/shared"
	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// StudentRepository implements student.Repository for MongoDB.
type StudentRepository struct {
	conn *Connection
	col  *mongo.Collection
}

// NewStudentRepository creates a StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{
		conn: conn,
		col:  conn.Collection(CollectionStudents),
	}
}

// studentDoc is the stored shape. authorized_levels stays raw so both legacy
// string entries and structured entries survive the round trip; a pointer
// distinguishes an absent field from a present-but-empty array.
type studentDoc struct {
	ID           string `bson:"_id"`
	UserID       string `bson:"user_id,omitempty"`
	Name         string `bson:"name,omitempty"`
	Email        string `bson:"email,omitempty"`
	RollNumber   string `bson:"roll_number,omitempty"`
	PasswordHash string `bson:"password_hash,omitempty"`
	Campus       string `bson:"campus,omitempty"`
	Course       string `bson:"course,omitempty"`
	Batch        string `bson:"batch,omitempty"`

	AuthorizedLevels *bson.A                            `bson:"authorized_levels,omitempty"`
	ModuleProgress   map[string]*student.ModuleProgress `bson:"module_progress,omitempty"`
	UnlockHistory    []student.UnlockHistoryEntry       `bson:"unlock_history,omitempty"`
	LockHistory      []student.LockHistoryEntry         `bson:"lock_history,omitempty"`

	CreatedAt interface{} `bson:"created_at,omitempty"`
	UpdatedAt interface{} `bson:"updated_at,omitempty"`
}

// GetByID returns a student by internal ID, normalizing authorized_levels
// on read.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	var doc studentDoc
	err := r.col.FindOne(qctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("find student %s: %w", id, err)
	}

	return docToStudent(&doc), nil
}

// Create inserts a new student document.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	doc := bson.M{
		"_id":        s.ID,
		"name":       s.Name,
		"email":      s.Email,
		"created_at": s.CreatedAt,
		"updated_at": s.UpdatedAt,
	}
	setOptional(doc, "user_id", s.UserID)
	setOptional(doc, "roll_number", s.RollNumber)
	setOptional(doc, "password_hash", s.PasswordHash)
	setOptional(doc, "campus", s.Campus)
	setOptional(doc, "course", s.Course)
	setOptional(doc, "batch", s.Batch)

	if _, err := r.col.InsertOne(qctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists the progress-owned fields with a $set, leaving everything
// else on the document untouched. New authorization entries are written in
// the structured shape; legacy entries round-trip as bare strings.
func (r *StudentRepository) Update(ctx context.Context, s *student.Student) error {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	set := bson.M{
		"authorized_levels": student.RawAuthorizedLevels(s.AuthorizedLevels),
		"updated_at":        s.UpdatedAt,
	}
	if s.ModuleProgress != nil {
		set["module_progress"] = s.ModuleProgress
	}
	if s.UnlockHistory != nil {
		set["unlock_history"] = s.UnlockHistory
	}
	if s.LockHistory != nil {
		set["lock_history"] = s.LockHistory
	}

	res, err := r.col.UpdateOne(qctx, bson.M{"_id": s.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update student %s: %w", s.ID, err)
	}
	if res.MatchedCount == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// CountAll returns the total number of students.
func (r *StudentRepository) CountAll(ctx context.Context) (int64, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	n, err := r.col.CountDocuments(qctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}

// CountWithProgress returns how many students carry any module_progress.
func (r *StudentRepository) CountWithProgress(ctx context.Context) (int64, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	filter := bson.M{"module_progress": bson.M{"$exists": true, "$ne": bson.M{}}}
	n, err := r.col.CountDocuments(qctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count students with progress: %w", err)
	}
	return n, nil
}

// ListProgressSnapshots streams the audit projection for students with
// authorized levels or module progress.
func (r *StudentRepository) ListProgressSnapshots(ctx context.Context) ([]student.ProgressSnapshot, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"authorized_levels": bson.M{"$exists": true}},
		bson.M{"module_progress": bson.M{"$exists": true}},
	}}
	projection := options.Find().SetProjection(bson.M{
		"authorized_levels": 1,
		"module_progress":   1,
	})

	cursor, err := r.col.Find(qctx, filter, projection)
	if err != nil {
		return nil, fmt.Errorf("scan students: %w", err)
	}
	defer cursor.Close(qctx)

	var snapshots []student.ProgressSnapshot
	for cursor.Next(qctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			continue
		}

		snap := student.ProgressSnapshot{
			StudentID: fmt.Sprint(toPlain(doc["_id"])),
		}

		if rawLevels, ok := doc["authorized_levels"]; ok {
			snap.HasAuthorizedField = true
			if arr, ok := toPlain(rawLevels).([]any); ok {
				for _, e := range student.NormalizeAuthorizedLevels(arr) {
					snap.AuthorizedLevelIDs = append(snap.AuthorizedLevelIDs, e.LevelID)
				}
			}
		}
		if progress, ok := toPlain(doc["module_progress"]).(map[string]any); ok {
			for moduleID := range progress {
				snap.ProgressModuleIDs = append(snap.ProgressModuleIDs, moduleID)
			}
		}

		snapshots = append(snapshots, snap)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("scan students: %w", err)
	}
	return snapshots, nil
}

func docToStudent(doc *studentDoc) *student.Student {
	s := &student.Student{
		ID:             doc.ID,
		UserID:         doc.UserID,
		Name:           doc.Name,
		Email:          doc.Email,
		RollNumber:     doc.RollNumber,
		PasswordHash:   doc.PasswordHash,
		Campus:         doc.Campus,
		Course:         doc.Course,
		Batch:          doc.Batch,
		ModuleProgress: doc.ModuleProgress,
		UnlockHistory:  doc.UnlockHistory,
		LockHistory:    doc.LockHistory,
	}

	if doc.AuthorizedLevels != nil {
		s.HasAuthorizedField = true
		if arr, ok := toPlain(*doc.AuthorizedLevels).([]any); ok {
			s.AuthorizedLevels = student.NormalizeAuthorizedLevels(arr)
		}
	}

	// created_at/updated_at shapes vary in legacy data (Date, string, absent);
	// only update writes them back, always as proper timestamps.
	if created, ok := toPlain(doc.CreatedAt).(time.Time); ok {
		s.CreatedAt = created
	}
	if updated, ok := toPlain(doc.UpdatedAt).(time.Time); ok {
		s.UpdatedAt = updated
	}

	return s
}

func setOptional(doc bson.M, key, value string) {
	if value != "" {
		doc[key] = value
	}
}
