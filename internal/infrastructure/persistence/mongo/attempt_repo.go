package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/versant-edu/versant-hub/internal/domain/attempt"
	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// AttemptRepository implements attempt.Repository over the two attempt
// collections (test_attempts and test_results), which were populated by
// different legacy writers and may overlap.
type AttemptRepository struct {
	conn     *Connection
	attempts *mongo.Collection
	results  *mongo.Collection
}

// NewAttemptRepository creates an AttemptRepository.
func NewAttemptRepository(conn *Connection) *AttemptRepository {
	return &AttemptRepository{
		conn:     conn,
		attempts: conn.Collection(CollectionAttempts),
		results:  conn.Collection(CollectionResults),
	}
}

// caseInsensitive matches identity values regardless of case; legacy writers
// stored emails with mixed casing.
var caseInsensitive = options.Collation{Locale: "en", Strength: 2}

// FindByIdentity returns every attempt matching any of the student's identity
// aliases, across both collections, deduplicated by document ID.
func (r *AttemptRepository) FindByIdentity(ctx context.Context, ids student.IdentitySet) ([]attempt.Attempt, error) {
	if ids.Size() == 0 {
		return nil, nil
	}

	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	values := ids.Values()
	in := bson.M{"$in": values}
	filter := bson.M{"$or": bson.A{
		bson.M{"student_id": in},
		bson.M{"user_id": in},
		bson.M{"email": in},
		bson.M{"roll_number": in},
	}}

	seen := make(map[string]bool)
	var out []attempt.Attempt

	for _, col := range []*mongo.Collection{r.attempts, r.results} {
		cursor, err := col.Find(qctx, filter, options.Find().SetCollation(&caseInsensitive))
		if err != nil {
			return nil, fmt.Errorf("find attempts in %s: %w", col.Name(), err)
		}

		for cursor.Next(qctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				continue
			}
			a := docToAttempt(doc)
			if a.ID == "" || seen[a.ID] {
				continue
			}
			// Re-check identity on the Go side: the collation-insensitive query
			// is a superset of what the alias set actually owns.
			if !ids.ContainsAny(a.IdentityValues()...) {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
		err = cursor.Err()
		cursor.Close(qctx)
		if err != nil {
			return nil, fmt.Errorf("scan attempts in %s: %w", col.Name(), err)
		}
	}

	return out, nil
}

func docToAttempt(doc bson.M) attempt.Attempt {
	plain := toPlainMap(doc)
	a := attempt.Attempt{
		ID:            fmt.Sprint(plain["_id"]),
		TestID:        plainString(plain, "test_id"),
		StudentID:     plainString(plain, "student_id"),
		UserID:        plainString(plain, "user_id"),
		Email:         plainString(plain, "email"),
		RollNumber:    plainString(plain, "roll_number"),
		ModuleID:      plainString(plain, "module_id"),
		LevelID:       plainString(plain, "level_id"),
		TestTypeField: plainString(plain, "test_type"),
		AttemptedAt:   plainTime(plain, "attempted_at"),
		Fields:        plain,
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = plainTime(plain, "created_at")
	}
	return a
}
