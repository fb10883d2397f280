package store

import "fmt"

// Key namespaces. All keys are lowercase; segments separated by ":".
// notation:
//   cap  = capsule
//   mem  = memory
//   gal  = gallery
//   idx  = secondary index
//   acl  = access-control grant tables
//   inv  = sharing invites
//   ext  = external-blob cleanup notices
//   out  = sharing outbox
const (
	capMetaKey = "cap:%s:meta"   // cap:<capsule_id>:meta
	capMemIdx  = "cap:%s:mem:%s" // cap:<capsule_id>:mem:<memory_id>
	capGalIdx  = "cap:%s:gal:%s" // cap:<capsule_id>:gal:<gallery_id>

	memKey = "mem:%s" // mem:<memory_id>
	galKey = "gal:%s" // gal:<gallery_id>

	ownerIdx   = "idx:owner:%s:cap:%s"   // idx:owner:<identity>:cap:<capsule_id>
	subjectIdx = "idx:subject:%s:cap:%s" // idx:subject:<subject>:cap:<capsule_id>
	selfCapIdx = "idx:selfcap:%s"        // idx:selfcap:<identity> -> capsule_id

	blobDataKey = "blob:%s:data" // blob:<locator>:data
	blobMetaKey = "blob:%s:meta" // blob:<locator>:meta

	aclMemberKey  = "acl:member:%s:%s:%s"    // acl:member:<rtype>:<rid>:<identity>
	aclPolicyKey  = "acl:policy:%s:%s"       // acl:policy:<rtype>:<rid>
	aclLinkKey    = "acl:link:%s"            // acl:link:<link_id>
	aclRLinkIdx   = "acl:rlink:%s:%s:%s"     // acl:rlink:<rtype>:<rid>:<link_id>
	aclLinkGrant  = "acl:linkgrant:%s:%s:%s" // acl:linkgrant:<rid>:<identity>:<link_id>
	aclLinkUseKey = "acl:linkuse:%s:%020d"   // acl:linkuse:<link_id>:<padded_ts>

	invSentKey  = "inv:sent:%s:%s"     // inv:sent:<from_capsule>:<invite_id>
	invRecvKey  = "inv:recv:%s:%s"     // inv:recv:<to_capsule>:<invite_id>
	invByResIdx = "inv:byres:%s:%s:%s" // inv:byres:<rid>:<side>:<invite_id> -> capsule_id

	extCleanKey = "ext:clean:%020d-%s" // ext:clean:<padded_ts>-<memory_id>

	outboxKey = "out:notice:%020d-%s" // out:notice:<padded_ts>-<notice_id>
)

func CapsuleMetaKey(id string) string        { return fmt.Sprintf(capMetaKey, id) }
func CapsuleMemoryIdx(cid, mid string) string { return fmt.Sprintf(capMemIdx, cid, mid) }
func CapsuleGalleryIdx(cid, gid string) string { return fmt.Sprintf(capGalIdx, cid, gid) }
func MemoryKey(id string) string             { return fmt.Sprintf(memKey, id) }
func GalleryKey(id string) string            { return fmt.Sprintf(galKey, id) }
func OwnerIdxKey(identity, cid string) string { return fmt.Sprintf(ownerIdx, identity, cid) }
func SubjectIdxKey(subject, cid string) string { return fmt.Sprintf(subjectIdx, subject, cid) }
func SelfCapIdxKey(identity string) string   { return fmt.Sprintf(selfCapIdx, identity) }
func BlobDataKey(locator string) string      { return fmt.Sprintf(blobDataKey, locator) }
func BlobMetaKey(locator string) string      { return fmt.Sprintf(blobMetaKey, locator) }
