package pkginfo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/stackforge/pkg/errors"
)

// DefaultCollection is the MongoDB collection used by MongoStore.
const DefaultCollection = "packages"

// MongoStore keeps package-info documents in a MongoDB collection, one
// document per name/version.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// mongoDoc adds the reference key used as the document ID.
type mongoDoc struct {
	ID   string `bson:"_id"`
	Info `bson:",inline"`
}

// NewMongoStore connects to uri and uses database db.
func NewMongoStore(ctx context.Context, uri, db string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "ping mongodb")
	}
	coll := client.Database(db).Collection(DefaultCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}, {Key: "version", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create index")
	}
	return &MongoStore{client: client, coll: coll}, nil
}

// Save upserts info.
func (s *MongoStore) Save(ctx context.Context, info *Info) error {
	doc := mongoDoc{ID: info.Ref(), Info: *info}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "save %s", doc.ID)
	}
	return nil
}

// Load fetches the document for name/version.
func (s *MongoStore) Load(ctx context.Context, name, version string) (*Info, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name + "/" + version}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeNotFound, "package %s/%s not published", name, version)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load %s/%s", name, version)
	}
	return &doc.Info, nil
}

// List returns every document ordered by reference.
func (s *MongoStore) List(ctx context.Context) ([]*Info, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "list packages")
	}
	defer cur.Close(ctx)

	var out []*Info
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode package")
		}
		out = append(out, &doc.Info)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "list packages")
	}
	return out, nil
}

// Delete removes the document for name/version.
func (s *MongoStore) Delete(ctx context.Context, name, version string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": name + "/" + version}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "delete %s/%s", name, version)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)
