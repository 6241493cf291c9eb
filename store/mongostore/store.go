// Package mongostore keeps the archive's index in MongoDB. Every level of the
// hierarchy is a collection whose documents carry the index documents of the
// entity and of its ancestors, so a query at any level reads one collection.
package mongostore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/store"
	"github.com/caio-sobreiro/dicomarc/types"
)

var collections = map[types.QueryLevel]string{
	types.QueryLevelPatient:  "patients",
	types.QueryLevelStudy:    "studies",
	types.QueryLevelSeries:   "series",
	types.QueryLevelInstance: "instances",
}

// key fields identifying the entity of each level
var keyFields = map[types.QueryLevel]string{
	types.QueryLevelPatient:  "patient_key",
	types.QueryLevelStudy:    "study_iuid",
	types.QueryLevelSeries:   "series_iuid",
	types.QueryLevelInstance: "sop_iuid",
}

// Option configures a Store instance.
type Option func(*Store)

// WithLogger overrides the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithFuzzyEncoder sets the encoder of the phonetic keys stored for person
// names.
func WithFuzzyEncoder(enc fuzzy.Encoder) Option {
	return func(s *Store) {
		s.enc = enc
	}
}

// WithRetrieveAETitle sets the AE title recorded for instances stored without
// one.
func WithRetrieveAETitle(aet string) Option {
	return func(s *Store) {
		s.retrieveAETitle = aet
	}
}

// Store is a MongoDB index of stored instances.
type Store struct {
	db              *mongo.Database
	logger          *slog.Logger
	enc             fuzzy.Encoder
	retrieveAETitle string
}

// New creates a store over db.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Open connects to the deployment at uri and uses database.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.NewStorageError("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.NewStorageError("ping", err)
	}
	return New(client.Database(database), opts...), nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func (s *Store) collection(level types.QueryLevel) *mongo.Collection {
	return s.db.Collection(collections[level])
}

// EnsureIndexes creates the unique key index and a wildcard index over the
// index documents of every collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, level := range types.QueryLevels() {
		models := []mongo.IndexModel{
			{Keys: bson.D{{Key: keyFields[level], Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "idx.$**", Value: 1}}},
		}
		if _, err := s.collection(level).Indexes().CreateMany(ctx, models); err != nil {
			return errors.NewStorageError("create indexes on "+collections[level], err)
		}
	}
	s.logger.InfoContext(ctx, "Index collections ready", "database", s.db.Name())
	return nil
}

// levelSet returns the $set entries storing the attributes of one level.
func (s *Store) levelSet(level types.QueryLevel, key string, pid types.IDWithIssuer, ds *dicom.Dataset) (bson.D, error) {
	set := bson.D{{Key: keyFields[level], Value: key}}
	if level == types.QueryLevelPatient {
		set = append(set, bson.E{Key: "pat_id", Value: pid.ID}, bson.E{Key: "pat_id_issuer", Value: pid.Issuer})
	}
	attrs, err := attributeJSON(ds)
	if err != nil {
		return nil, err
	}
	for k, v := range attrs {
		set = append(set, bson.E{Key: "attrs." + string(level) + "." + k, Value: v})
	}
	for k, v := range store.NewDocument(ds, s.enc) {
		set = append(set, bson.E{Key: levelPath(level, k), Value: v})
	}
	return set, nil
}

// attributeJSON returns the DICOM JSON of every attribute of ds keyed by tag.
func attributeJSON(ds *dicom.Dataset) (map[string]string, error) {
	b, err := ds.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = string(v)
	}
	return out, nil
}

// Put indexes one instance. ds holds its attributes; ref locates the stored
// object. Attributes of an already known patient, study or series are
// updated on every document carrying them, later values winning.
func (s *Store) Put(ctx context.Context, ds *dicom.Dataset, ref types.InstanceRef) error {
	keys := map[types.QueryLevel]string{
		types.QueryLevelStudy:    ds.GetString(dicom.StudyInstanceUID),
		types.QueryLevelSeries:   ds.GetString(dicom.SeriesInstanceUID),
		types.QueryLevelInstance: ds.GetString(dicom.SOPInstanceUID),
	}
	if keys[types.QueryLevelStudy] == "" || keys[types.QueryLevelSeries] == "" || keys[types.QueryLevelInstance] == "" {
		return fmt.Errorf("%w: instance lacks study, series or SOP instance UID", errors.ErrInvalidValue)
	}
	pid := types.IDWithIssuer{
		ID:     ds.GetString(dicom.PatientID),
		Issuer: ds.GetString(dicom.IssuerOfPatientID),
	}
	keys[types.QueryLevelPatient] = pid.String()
	ref.SOPClassUID = cmp.Or(ref.SOPClassUID, ds.GetString(dicom.SOPClassUID))
	ref.RetrieveAETitle = cmp.Or(ref.RetrieveAETitle, s.retrieveAETitle)
	ref.Availability = cmp.Or(ref.Availability, types.AvailabilityOnline)
	rank := store.AvailabilityRank(ref.Availability)

	split := store.SplitLevels(ds)
	sets := make(map[types.QueryLevel]bson.D, len(split))
	for level, attrs := range split {
		set, err := s.levelSet(level, keys[level], pid, attrs)
		if err != nil {
			return fmt.Errorf("encode %s attributes: %w", level, err)
		}
		sets[level] = set
	}
	through := func(level types.QueryLevel) bson.D {
		var d bson.D
		for _, l := range append(level.Ancestors(), level) {
			d = append(d, sets[l]...)
		}
		return d
	}

	op := "put " + keys[types.QueryLevelInstance]
	aets := bson.A{}
	if ref.RetrieveAETitle != "" {
		aets = append(aets, ref.RetrieveAETitle)
	}
	instanceSet := append(through(types.QueryLevelInstance),
		bson.E{Key: "sop_cuid", Value: ref.SOPClassUID},
		bson.E{Key: "tsuid", Value: ref.TransferSyntaxUID},
		bson.E{Key: "location", Value: ref.Location},
		bson.E{Key: "retrieve_aet", Value: ref.RetrieveAETitle},
		bson.E{Key: "derived.instances", Value: int64(1)},
		bson.E{Key: "derived.retrieve_aets", Value: aets},
		bson.E{Key: "derived.availability", Value: rank},
	)
	newInstance, err := s.upsert(ctx, types.QueryLevelInstance, keys, bson.M{"$set": instanceSet})
	if err != nil {
		return errors.NewStorageError(op, err)
	}

	contents := func(level types.QueryLevel) bson.M {
		update := bson.M{
			"$set": through(level),
			"$max": bson.D{{Key: "derived.availability", Value: rank}},
		}
		addToSet := bson.D{}
		if ref.RetrieveAETitle != "" {
			addToSet = append(addToSet, bson.E{Key: "derived.retrieve_aets", Value: ref.RetrieveAETitle})
		}
		if level == types.QueryLevelStudy {
			if m := ds.GetString(dicom.Modality); m != "" {
				addToSet = append(addToSet, bson.E{Key: "derived.modalities", Value: m})
			}
			if ref.SOPClassUID != "" {
				addToSet = append(addToSet, bson.E{Key: "derived.sop_classes", Value: ref.SOPClassUID})
			}
		}
		if len(addToSet) > 0 {
			update["$addToSet"] = addToSet
		}
		return update
	}
	incr := func(update bson.M, counts ...countIf) bson.M {
		inc := bson.D{}
		for _, c := range counts {
			if c.created {
				inc = append(inc, bson.E{Key: "derived." + c.field, Value: int64(1)})
			}
		}
		if len(inc) > 0 {
			update["$inc"] = inc
		}
		return update
	}

	newSeries, err := s.upsert(ctx, types.QueryLevelSeries, keys,
		incr(contents(types.QueryLevelSeries), countIf{"instances", newInstance}))
	if err != nil {
		return errors.NewStorageError(op, err)
	}
	newStudy, err := s.upsert(ctx, types.QueryLevelStudy, keys,
		incr(contents(types.QueryLevelStudy), countIf{"series", newSeries}, countIf{"instances", newInstance}))
	if err != nil {
		return errors.NewStorageError(op, err)
	}
	if _, err := s.upsert(ctx, types.QueryLevelPatient, keys,
		incr(bson.M{"$set": sets[types.QueryLevelPatient]},
			countIf{"studies", newStudy}, countIf{"series", newSeries}, countIf{"instances", newInstance})); err != nil {
		return errors.NewStorageError(op, err)
	}

	if err := s.propagate(ctx, keys, sets); err != nil {
		return errors.NewStorageError(op, err)
	}
	if newInstance {
		if err := s.inheritRestrictions(ctx, keys); err != nil {
			return errors.NewStorageError(op, err)
		}
	}
	s.logger.DebugContext(ctx, "Indexed instance",
		"sop_instance_uid", keys[types.QueryLevelInstance],
		"location", ref.Location,
		"new_series", newSeries,
		"new_study", newStudy)
	return nil
}

type countIf struct {
	field string
	created bool
}

// upsert updates the entity of level, creating it when missing, and reports
// whether it was created.
func (s *Store) upsert(ctx context.Context, level types.QueryLevel, keys map[types.QueryLevel]string, update bson.M) (bool, error) {
	res, err := s.collection(level).UpdateOne(ctx,
		bson.D{{Key: keyFields[level], Value: keys[level]}},
		update,
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("%s: %w", collections[level], err)
	}
	return res.UpsertedCount > 0, nil
}

// propagate copies the ancestor attributes written by Put onto the other
// descendants of each ancestor.
func (s *Store) propagate(ctx context.Context, keys map[types.QueryLevel]string, sets map[types.QueryLevel]bson.D) error {
	for _, level := range types.QueryLevels()[1:] {
		var models []mongo.WriteModel
		for _, ancestor := range level.Ancestors() {
			models = append(models, mongo.NewUpdateManyModel().
				SetFilter(bson.D{{Key: keyFields[ancestor], Value: keys[ancestor]}}).
				SetUpdate(bson.D{{Key: "$set", Value: sets[ancestor]}}))
		}
		if _, err := s.collection(level).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("%s: %w", collections[level], err)
		}
	}
	return nil
}

// inheritRestrictions copies the merged flag of the patient and the access
// control id of the study onto the documents below them.
func (s *Store) inheritRestrictions(ctx context.Context, keys map[types.QueryLevel]string) error {
	var p struct {
		Merged bool `bson:"merged"`
	}
	if err := s.collection(types.QueryLevelPatient).FindOne(ctx,
		bson.D{{Key: keyFields[types.QueryLevelPatient], Value: keys[types.QueryLevelPatient]}}).Decode(&p); err != nil {
		return err
	}
	var st struct {
		AccessControlID string `bson:"access_control_id"`
	}
	if err := s.collection(types.QueryLevelStudy).FindOne(ctx,
		bson.D{{Key: keyFields[types.QueryLevelStudy], Value: keys[types.QueryLevelStudy]}}).Decode(&st); err != nil {
		return err
	}
	if !p.Merged && st.AccessControlID == "" {
		return nil
	}
	set := bson.D{{Key: "$set", Value: bson.D{
		{Key: "merged", Value: p.Merged},
		{Key: "access_control_id", Value: st.AccessControlID},
	}}}
	for _, level := range []types.QueryLevel{types.QueryLevelStudy, types.QueryLevelSeries, types.QueryLevelInstance} {
		if _, err := s.collection(level).UpdateMany(ctx,
			bson.D{{Key: keyFields[types.QueryLevelStudy], Value: keys[types.QueryLevelStudy]}}, set); err != nil {
			return err
		}
	}
	return nil
}

// patientFilter selects the documents of the patient known as pid.
func patientFilter(pid types.IDWithIssuer) bson.D {
	f := bson.D{{Key: "pat_id", Value: pid.ID}}
	if pid.Issuer != "" {
		f = append(f, bson.E{Key: "pat_id_issuer", Value: bson.D{{Key: "$in", Value: bson.A{pid.Issuer, ""}}}})
	}
	return f
}

// MergePatient marks the patient known as from as merged into another
// patient. Merged patients are excluded from searches unless requested.
func (s *Store) MergePatient(ctx context.Context, from types.IDWithIssuer) error {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "merged", Value: true}}}}
	for _, level := range types.QueryLevels() {
		res, err := s.collection(level).UpdateMany(ctx, patientFilter(from), update)
		if err != nil {
			return errors.NewStorageError("merge patient", err)
		}
		if level == types.QueryLevelPatient && res.MatchedCount == 0 {
			return fmt.Errorf("%w: patient %s", errors.ErrObjectNotFound, from)
		}
	}
	return nil
}

// SetAccessControlID restricts a study to callers holding id.
func (s *Store) SetAccessControlID(ctx context.Context, studyUID, id string) error {
	filter := bson.D{{Key: keyFields[types.QueryLevelStudy], Value: studyUID}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "access_control_id", Value: id}}}}
	for _, level := range types.QueryLevels()[1:] {
		res, err := s.collection(level).UpdateMany(ctx, filter, update)
		if err != nil {
			return errors.NewStorageError("set access control id", err)
		}
		if level == types.QueryLevelStudy && res.MatchedCount == 0 {
			return fmt.Errorf("%w: study %s", errors.ErrObjectNotFound, studyUID)
		}
	}
	return nil
}

type instanceDoc struct {
	StudyUID        string `bson:"study_iuid"`
	SeriesUID       string `bson:"series_iuid"`
	SOPClassUID     string `bson:"sop_cuid"`
	TSUID           string `bson:"tsuid"`
	Location        string `bson:"location"`
	RetrieveAETitle string `bson:"retrieve_aet"`
	Derived         struct {
		Availability int `bson:"availability"`
	} `bson:"derived"`
}

// Locate implements interfaces.InstanceLocator.
func (s *Store) Locate(ctx context.Context, studyUID, seriesUID, sopUID string) (*types.InstanceRef, error) {
	f := bson.D{{Key: keyFields[types.QueryLevelInstance], Value: sopUID}}
	if studyUID != "" {
		f = append(f, bson.E{Key: keyFields[types.QueryLevelStudy], Value: studyUID})
	}
	if seriesUID != "" {
		f = append(f, bson.E{Key: keyFields[types.QueryLevelSeries], Value: seriesUID})
	}
	var doc instanceDoc
	err := s.collection(types.QueryLevelInstance).FindOne(ctx, f,
		options.FindOne().SetProjection(bson.D{{Key: "idx", Value: 0}, {Key: "attrs", Value: 0}})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: instance %s", errors.ErrObjectNotFound, sopUID)
	}
	if err != nil {
		return nil, errors.NewStorageError("locate "+sopUID, err)
	}
	return &types.InstanceRef{
		StudyInstanceUID:  doc.StudyUID,
		SeriesInstanceUID: doc.SeriesUID,
		SOPInstanceUID:    sopUID,
		SOPClassUID:       doc.SOPClassUID,
		TransferSyntaxUID: doc.TSUID,
		Location:          doc.Location,
		RetrieveAETitle:   doc.RetrieveAETitle,
		Availability:      store.AvailabilityOfRank(doc.Derived.Availability),
	}, nil
}

// Acquire implements query.Backend. The connection's operations share one
// causally consistent session.
func (s *Store) Acquire(ctx context.Context) (query.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return nil, err
	}
	return &conn{store: s, sess: sess}, nil
}
