package mongo

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/shipment"
)

const shipmentCounterID = "shipments"

type ShipmentRepo struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

func NewShipmentRepo(db *mongo.Database) *ShipmentRepo {
	return &ShipmentRepo{coll: db.Collection(shipmentsCollection), counters: db.Collection(countersCollection)}
}

type counter struct {
	Seq int64 `bson:"seq"`
}

func (r *ShipmentRepo) NextID(ctx context.Context) (string, error) {
	var c counter
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": shipmentCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return "", apperrors.Transport("next shipment id", err)
	}
	return shipment.FormatID(c.Seq), nil
}

// RaiseCounter makes sure NextID never hands out an id at or below n.
func (r *ShipmentRepo) RaiseCounter(ctx context.Context, n int64) error {
	_, err := r.counters.UpdateOne(ctx,
		bson.M{"_id": shipmentCounterID},
		bson.M{"$max": bson.M{"seq": n}},
		options.Update().SetUpsert(true),
	)
	return classify("raise shipment counter", "counter", shipmentCounterID, err)
}

func (r *ShipmentRepo) Insert(ctx context.Context, s *models.Shipment) error {
	_, err := r.coll.InsertOne(ctx, s)
	return classify("insert shipment", "shipment", s.ID, err)
}

func (r *ShipmentRepo) Get(ctx context.Context, id string) (*models.Shipment, error) {
	var s models.Shipment
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		return nil, classify("get shipment", "shipment", id, err)
	}
	return &s, nil
}

func (r *ShipmentRepo) List(ctx context.Context, f shipment.Filter) ([]models.Shipment, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: -1},
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: -1},
	})
	cur, err := r.coll.Find(ctx, listFilter(f), opts)
	if err != nil {
		return nil, apperrors.Transport("list shipments", err)
	}
	out := []models.Shipment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperrors.Transport("list shipments", err)
	}
	return out, nil
}

func listFilter(f shipment.Filter) bson.M {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = f.Status
	} else if f.ActiveOnly {
		active := make(bson.A, 0, len(models.ActiveStatuses))
		for _, st := range models.ActiveStatuses {
			active = append(active, st)
		}
		q["status"] = bson.M{"$in": active}
	}
	if f.CustomerID != "" {
		q["customerId"] = f.CustomerID
	}
	if f.AgentID != "" {
		q["agentId"] = f.AgentID
	}
	if text := strings.TrimSpace(f.Query); text != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(text), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"_id": re},
			bson.M{"customerName": re},
			bson.M{"toCity": re},
		}
	}
	return q
}

// Update applies patch only while the stored status equals expected.
func (r *ShipmentRepo) Update(ctx context.Context, id string, expected models.ShipmentStatus, patch models.ShipmentPatch) error {
	update := bson.M{}
	if set := patch.SetDoc(); len(set) > 0 {
		update["$set"] = set
	}
	if patch.AppendHistory != nil {
		update["$push"] = bson.M{"history": *patch.AppendHistory}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "status": expected}, update)
	if err != nil {
		return apperrors.Transport("update shipment", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return r.explainMiss(ctx, "update", id, expected)
}

func (r *ShipmentRepo) UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusInTransit},
		bson.M{"$set": bson.M{"currentLat": lat, "currentLng": lng, "updatedAt": at}},
	)
	if err != nil {
		return apperrors.Transport("update location", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return r.explainMiss(ctx, "update_location", id, models.StatusInTransit)
}

// explainMiss tells an unknown id apart from a status precondition miss.
func (r *ShipmentRepo) explainMiss(ctx context.Context, op, id string, expected models.ShipmentStatus) error {
	var cur struct {
		Status models.ShipmentStatus `bson:"status"`
	}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"status": 1})).Decode(&cur)
	if err != nil {
		return classify(op, "shipment", id, err)
	}
	return apperrors.InvalidTransition(op, id, string(cur.Status), string(expected))
}
