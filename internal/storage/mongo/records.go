package mongo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/issue"
	"shiptrack-api-server/internal/models"
)

type NotificationRepo struct{ coll *mongo.Collection }

func NewNotificationRepo(db *mongo.Database) *NotificationRepo {
	return &NotificationRepo{coll: db.Collection(notificationsCollection)}
}

func (r *NotificationRepo) Insert(ctx context.Context, n *models.Notification) error {
	_, err := r.coll.InsertOne(ctx, n)
	return classify("insert notification", "notification", n.ID, err)
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, apperrors.Transport("list notifications", err)
	}
	out := []models.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.Transport("list notifications", err)
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "userId": userID}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return false, apperrors.Transport("mark notification read", err)
	}
	if res.MatchedCount == 0 {
		return false, apperrors.NotFound("notification", id)
	}
	return res.ModifiedCount == 1, nil
}

func (r *NotificationRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, apperrors.Transport("clear notifications", err)
	}
	return res.DeletedCount, nil
}

type MessageRepo struct{ coll *mongo.Collection }

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection)}
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	_, err := r.coll.InsertOne(ctx, m)
	return classify("insert message", "message", m.ID, err)
}

func (r *MessageRepo) ListByShipment(ctx context.Context, shipmentID string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"shipmentId": shipmentID}, opts)
	if err != nil {
		return nil, apperrors.Transport("list messages", err)
	}
	out := []models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.Transport("list messages", err)
	}
	return out, nil
}

type IssueRepo struct{ coll *mongo.Collection }

func NewIssueRepo(db *mongo.Database) *IssueRepo {
	return &IssueRepo{coll: db.Collection(issuesCollection)}
}

func (r *IssueRepo) Insert(ctx context.Context, i *models.Issue) error {
	_, err := r.coll.InsertOne(ctx, i)
	return classify("insert issue", "issue", i.ID, err)
}

func (r *IssueRepo) Get(ctx context.Context, id string) (*models.Issue, error) {
	var i models.Issue
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&i); err != nil {
		return nil, classify("get issue", "issue", id, err)
	}
	return &i, nil
}

func (r *IssueRepo) List(ctx context.Context, f issue.Filter) ([]models.Issue, error) {
	q := bson.M{}
	if f.UserID != "" {
		q["userId"] = f.UserID
	}
	if f.ShipmentID != "" {
		q["shipmentId"] = f.ShipmentID
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	cur, err := r.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, apperrors.Transport("list issues", err)
	}
	out := []models.Issue{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.Transport("list issues", err)
	}
	return out, nil
}

func (r *IssueRepo) Resolve(ctx context.Context, id, by string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.IssueOpen},
		bson.M{"$set": bson.M{"status": models.IssueResolved, "resolvedBy": by, "resolvedAt": at}},
	)
	if err != nil {
		return apperrors.Transport("resolve issue", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.Conflict("issue " + id + " is already resolved")
}

type ProfileRepo struct{ coll *mongo.Collection }

func NewProfileRepo(db *mongo.Database) *ProfileRepo {
	return &ProfileRepo{coll: db.Collection(profilesCollection)}
}

func (r *ProfileRepo) Insert(ctx context.Context, p *models.UserProfile) error {
	_, err := r.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.Conflict("email " + p.Email + " is already registered")
	}
	return classify("insert profile", "profile", p.ID, err)
}

func (r *ProfileRepo) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, classify("get profile", "profile", id, err)
	}
	return &p, nil
}

func (r *ProfileRepo) GetByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := r.coll.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&p); err != nil {
		return nil, classify("get profile", "profile", email, err)
	}
	return &p, nil
}

func (r *ProfileRepo) Update(ctx context.Context, id string, upd models.ProfileUpdate, at time.Time) (*models.UserProfile, error) {
	set := bson.M{"updatedAt": at}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.Address != nil {
		set["address"] = *upd.Address
	}
	if upd.AvatarURL != nil {
		set["avatarUrl"] = *upd.AvatarURL
	}
	var p models.UserProfile
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return nil, classify("update profile", "profile", id, err)
	}
	return &p, nil
}

func (r *ProfileRepo) ListByRole(ctx context.Context, roles ...string) ([]models.UserProfile, error) {
	cur, err := r.coll.Find(ctx, bson.M{"role": bson.M{"$in": roles}})
	if err != nil {
		return nil, apperrors.Transport("list profiles", err)
	}
	out := []models.UserProfile{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.Transport("list profiles", err)
	}
	return out, nil
}

// ProofRepo keeps delivery photo uploads.
type ProofRepo struct{ coll *mongo.Collection }

func NewProofRepo(db *mongo.Database) *ProofRepo {
	return &ProofRepo{coll: db.Collection(proofsCollection)}
}

func (r *ProofRepo) Insert(ctx context.Context, p *models.DeliveryProof) error {
	_, err := r.coll.InsertOne(ctx, p)
	return classify("insert delivery proof", "delivery proof", p.ID, err)
}

func (r *ProofRepo) Latest(ctx context.Context, shipmentID string) (*models.DeliveryProof, error) {
	var p models.DeliveryProof
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := r.coll.FindOne(ctx, bson.M{"shipmentId": shipmentID}, opts).Decode(&p); err != nil {
		return nil, classify("get delivery proof", "delivery proof", shipmentID, err)
	}
	return &p, nil
}
