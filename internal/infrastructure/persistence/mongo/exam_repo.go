package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/versant-edu/versant-hub/internal/domain/exam"
	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// ExamRepository implements exam.Repository over the online_exams collection.
type ExamRepository struct {
	conn *Connection
	col  *mongo.Collection
}

// NewExamRepository creates an ExamRepository.
func NewExamRepository(conn *Connection) *ExamRepository {
	return &ExamRepository{
		conn: conn,
		col:  conn.Collection(CollectionExams),
	}
}

// ListAssignedTo returns exams targeting the student, by explicit ID or by
// cohort membership. The query narrows the candidate set; the final
// assignment check runs in Go so the cohort rules live in one place.
func (r *ExamRepository) ListAssignedTo(ctx context.Context, s *student.Student) ([]exam.Exam, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	clauses := bson.A{
		bson.M{"assigned_student_ids": s.ID},
	}
	cohort := bson.M{}
	if s.Campus != "" {
		cohort["campus"] = bson.M{"$in": bson.A{s.Campus, ""}}
	}
	if s.Course != "" {
		cohort["course"] = bson.M{"$in": bson.A{s.Course, ""}}
	}
	if s.Batch != "" {
		cohort["batch"] = bson.M{"$in": bson.A{s.Batch, ""}}
	}
	if len(cohort) > 0 {
		clauses = append(clauses, cohort)
	}

	cursor, err := r.col.Find(qctx, bson.M{"$or": clauses})
	if err != nil {
		return nil, fmt.Errorf("list assigned exams: %w", err)
	}
	defer cursor.Close(qctx)

	var exams []exam.Exam
	for cursor.Next(qctx) {
		var e exam.Exam
		if err := cursor.Decode(&e); err != nil {
			continue
		}
		if e.IsAssignedTo(s) {
			exams = append(exams, e)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list assigned exams: %w", err)
	}
	return exams, nil
}
